package sandbox

import (
	"context"
	"errors"
	"time"
)

// Outcome classifications. Terminal classifications are the expected outcome
// space for faulty student code and are never retried.
const (
	ClassSuccess          = "success"
	ClassRuntimeError     = "runtime-error"
	ClassTimeout          = "timeout"
	ClassResourceExceeded = "resource-exceeded"
)

// ErrUnsupportedLanguage indicates the declared language is outside the closed set.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// ErrInfrastructure indicates the sandbox itself could not be provisioned.
// Callers retry it with backoff; it never classifies the student's code.
var ErrInfrastructure = errors.New("sandbox infrastructure error")

// Request describes one isolated execution of submitted code.
type Request struct {
	SubmissionID uint
	Language     string
	Source       string
	Timeout      time.Duration
}

// Outcome summarises a single sandbox run. Output streams are captured
// verbatim; Classification is always one of the Class constants.
type Outcome struct {
	Classification string
	Stdout         string
	Stderr         string
	ExitCode       int
	Duration       time.Duration
}

// Runner executes untrusted code inside a disposable, resource-bounded
// context. Implementations must release every temporary artifact on all
// exit paths, including timeout and cancellation.
type Runner interface {
	Run(ctx context.Context, req Request) (Outcome, error)
}
