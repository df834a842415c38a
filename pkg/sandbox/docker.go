package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// exit code the kernel reports when the cgroup memory ceiling kills the process
const oomExitCode = 137

type languageProfile struct {
	Image    string
	FileName string
	Command  []string
}

var dockerLanguages = map[string]languageProfile{
	"javascript": {
		Image:    "node:20-alpine",
		FileName: "main.js",
		Command:  []string{"node", "main.js"},
	},
	"python": {
		Image:    "python:3.11-alpine",
		FileName: "main.py",
		Command:  []string{"python", "main.py"},
	},
	"java": {
		Image:    "eclipse-temurin:21-jdk-alpine",
		FileName: "Main.java",
		Command:  []string{"sh", "-c", "javac Main.java && java Main"},
	},
	"cpp": {
		Image:    "gcc:13",
		FileName: "main.cpp",
		Command:  []string{"sh", "-c", "g++ -O2 -o main main.cpp && ./main"},
	},
}

// DockerConfig groups Docker runner configuration values.
type DockerConfig struct {
	Host          string
	Timeout       time.Duration
	MemoryLimitMB int64
	CPUShares     int64
	WorkspaceRoot string
	Logger        zerolog.Logger
}

// DockerRunner executes non-SQL submissions inside disposable Docker
// containers with the network disabled and memory/CPU ceilings applied.
type DockerRunner struct {
	client *client.Client
	cfg    DockerConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewDockerRunner constructs a Docker backed sandbox runner.
func NewDockerRunner(cfg DockerConfig) (*DockerRunner, error) {
	opts := []client.Opt{client.WithAPIVersionNegotiation()}
	if cfg.Host != "" {
		opts = append(opts, client.WithHost(cfg.Host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if cfg.WorkspaceRoot == "" {
		cfg.WorkspaceRoot = os.TempDir()
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &DockerRunner{
		client: cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/grader-go-api/pkg/sandbox"),
		logger: logger.With().Str("component", "docker_runner").Logger(),
	}, nil
}

// Run materializes the submission source into a fresh workspace, executes it
// in a one-shot container and classifies the result. The workspace and the
// container are removed on every exit path.
func (r *DockerRunner) Run(parent context.Context, req Request) (Outcome, error) {
	profile, ok := dockerLanguages[req.Language]
	if !ok {
		return Outcome{}, ErrUnsupportedLanguage
	}

	ctx, span := r.tracer.Start(parent, "sandbox.docker.run", trace.WithAttributes(
		attribute.String("sandbox.language", req.Language),
		attribute.Int64("sandbox.submission_id", int64(req.SubmissionID)),
	))
	defer span.End()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = r.cfg.Timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	workspace, err := os.MkdirTemp(r.cfg.WorkspaceRoot, "sandbox-")
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: create workspace: %v", ErrInfrastructure, err)
	}
	defer os.RemoveAll(workspace)

	if err := os.WriteFile(filepath.Join(workspace, profile.FileName), []byte(req.Source), 0o600); err != nil {
		return Outcome{}, fmt.Errorf("%w: write source: %v", ErrInfrastructure, err)
	}

	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:    r.cfg.MemoryLimitMB * 1024 * 1024,
			CPUShares: r.cfg.CPUShares,
		},
		Mounts: []mount.Mount{{
			Type:   mount.TypeBind,
			Source: workspace,
			Target: "/workspace",
		}},
	}

	containerCfg := &container.Config{
		Image:           profile.Image,
		Cmd:             profile.Command,
		WorkingDir:      "/workspace",
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}

	start := time.Now()

	resp, err := r.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		runFailures.WithLabelValues(req.Language).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, fmt.Errorf("%w: container create: %v", ErrInfrastructure, err)
	}

	containerID := resp.ID
	defer func() {
		removeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.client.ContainerRemove(removeCtx, containerID, container.RemoveOptions{Force: true}); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to remove container")
		}
	}()

	if err := r.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		runFailures.WithLabelValues(req.Language).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Outcome{}, fmt.Errorf("%w: container start: %v", ErrInfrastructure, err)
	}

	statusCh, errCh := r.client.ContainerWait(ctx, containerID, container.WaitConditionNextExit)

	outcome := Outcome{}
	timedOut := false

	select {
	case err := <-errCh:
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			timedOut = true
		} else if err != nil {
			runFailures.WithLabelValues(req.Language).Inc()
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return Outcome{}, fmt.Errorf("%w: container wait: %v", ErrInfrastructure, err)
		}
	case status := <-statusCh:
		outcome.ExitCode = int(status.StatusCode)
	case <-ctx.Done():
		timedOut = ctx.Err() == context.DeadlineExceeded
		if !timedOut {
			return Outcome{}, ctx.Err()
		}
	}

	outcome.Duration = time.Since(start)
	runDuration.WithLabelValues(req.Language).Observe(outcome.Duration.Seconds())

	if timedOut {
		runTimeouts.WithLabelValues(req.Language).Inc()
		killCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.client.ContainerKill(killCtx, containerID, "KILL"); err != nil {
			r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to kill timed out container")
		}
	}

	// logs are still readable after a forced kill
	logReader, err := r.client.ContainerLogs(parent, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		defer logReader.Close()
		stdout, stderr, splitErr := splitDockerLogs(logReader)
		if splitErr != nil {
			r.logger.Error().Err(splitErr).Str("container_id", containerID).Msg("failed to read container logs")
		} else {
			outcome.Stdout = stdout
			outcome.Stderr = stderr
		}
	} else {
		r.logger.Error().Err(err).Str("container_id", containerID).Msg("failed to fetch container logs")
	}

	outcome.Classification = classifyDockerExit(outcome.ExitCode, timedOut)
	span.SetAttributes(attribute.String("sandbox.classification", outcome.Classification))

	return outcome, nil
}

func classifyDockerExit(exitCode int, timedOut bool) string {
	switch {
	case timedOut:
		return ClassTimeout
	case exitCode == oomExitCode:
		return ClassResourceExceeded
	case exitCode != 0:
		return ClassRuntimeError
	default:
		return ClassSuccess
	}
}

func splitDockerLogs(reader io.Reader) (string, string, error) {
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, reader); err != nil {
		return "", "", err
	}
	return stdoutBuf.String(), stderrBuf.String(), nil
}

// Close shuts down the runner's underlying Docker client.
func (r *DockerRunner) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
