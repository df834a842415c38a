package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type scriptedRunner struct {
	calls    int
	failures int
	err      error
	outcome  Outcome
}

func (s *scriptedRunner) Run(_ context.Context, _ Request) (Outcome, error) {
	s.calls++
	if s.calls <= s.failures {
		return Outcome{}, s.err
	}
	return s.outcome, nil
}

func newRetryForTest(inner Runner) (*RetryRunner, *[]time.Duration) {
	runner := NewRetryRunner(inner, RetryConfig{Attempts: 3, Base: 100 * time.Millisecond, Logger: zerolog.New(io.Discard)})
	var slept []time.Duration
	runner.sleep = func(d time.Duration) { slept = append(slept, d) }
	return runner, &slept
}

func TestRetryRunnerRecoversFromProvisioningFailures(t *testing.T) {
	inner := &scriptedRunner{
		failures: 2,
		err:      fmt.Errorf("%w: dockerd unreachable", ErrInfrastructure),
		outcome:  Outcome{Classification: ClassSuccess, Stdout: "ok"},
	}
	runner, slept := newRetryForTest(inner)

	outcome, err := runner.Run(context.Background(), Request{SubmissionID: 1, Language: "python"})
	require.NoError(t, err)
	require.Equal(t, ClassSuccess, outcome.Classification)
	require.Equal(t, 3, inner.calls)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept, "backoff doubles per attempt")
}

func TestRetryRunnerGivesUpAfterBudget(t *testing.T) {
	inner := &scriptedRunner{
		failures: 10,
		err:      fmt.Errorf("%w: dockerd unreachable", ErrInfrastructure),
	}
	runner, _ := newRetryForTest(inner)

	_, err := runner.Run(context.Background(), Request{SubmissionID: 1, Language: "python"})
	require.ErrorIs(t, err, ErrInfrastructure)
	require.Equal(t, 3, inner.calls)
}

func TestRetryRunnerDoesNotRetryTerminalOutcomes(t *testing.T) {
	inner := &scriptedRunner{outcome: Outcome{Classification: ClassRuntimeError, ExitCode: 1}}
	runner, slept := newRetryForTest(inner)

	outcome, err := runner.Run(context.Background(), Request{SubmissionID: 1, Language: "python"})
	require.NoError(t, err)
	require.Equal(t, ClassRuntimeError, outcome.Classification)
	require.Equal(t, 1, inner.calls)
	require.Empty(t, *slept)
}

func TestRetryRunnerDoesNotRetryUnsupportedLanguage(t *testing.T) {
	inner := &scriptedRunner{failures: 10, err: ErrUnsupportedLanguage}
	runner, _ := newRetryForTest(inner)

	_, err := runner.Run(context.Background(), Request{SubmissionID: 1, Language: "cobol"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
	require.Equal(t, 1, inner.calls)
}

func TestRetryRunnerStopsOnCancelledContext(t *testing.T) {
	inner := &scriptedRunner{failures: 10, err: fmt.Errorf("%w: dockerd unreachable", ErrInfrastructure)}
	runner, _ := newRetryForTest(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runner.Run(ctx, Request{SubmissionID: 1, Language: "python"})
	require.True(t, errors.Is(err, context.Canceled))
	require.Zero(t, inner.calls)
}

func TestMuxRoutesByLanguage(t *testing.T) {
	sqlRunner := &scriptedRunner{outcome: Outcome{Stdout: "sql"}}
	dockerRunner := &scriptedRunner{outcome: Outcome{Stdout: "docker"}}
	mux := NewMux(sqlRunner, dockerRunner)

	outcome, err := mux.Run(context.Background(), Request{Language: "sql"})
	require.NoError(t, err)
	require.Equal(t, "sql", outcome.Stdout)

	for _, language := range []string{"javascript", "python", "java", "cpp"} {
		outcome, err = mux.Run(context.Background(), Request{Language: language})
		require.NoError(t, err)
		require.Equal(t, "docker", outcome.Stdout)
	}
	require.Equal(t, 4, dockerRunner.calls)

	_, err = mux.Run(context.Background(), Request{Language: "cobol"})
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}
