package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Event kinds published on grading state transitions.
const (
	KindExecutionComplete = "execution.complete"
	KindGradeFinalized    = "grade.finalized"
	KindPlagiarismFlagged = "plagiarism.flagged"
	KindSubmissionQueued  = "submission.queued"
)

// Event is the structured payload pushed to the external audit sink.
// Routing and formatting beyond JSON encoding belong to the sink.
type Event struct {
	ID           string         `json:"id"`
	Kind         string         `json:"kind"`
	SubmissionID uint           `json:"submission_id"`
	ActorID      uint           `json:"actor_id,omitempty"`
	ActorKind    string         `json:"actor_kind,omitempty"`
	Detail       map[string]any `json:"detail,omitempty"`
	EmittedAt    time.Time      `json:"emitted_at"`
}

// Publisher emits audit events. A nil NATS connection degrades to logging
// only, so tests and local runs need no broker.
type Publisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewPublisher constructs an audit event publisher.
func NewPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) *Publisher {
	if subject == "" {
		subject = "grader.audit"
	}

	return &Publisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "event_publisher").Logger(),
	}
}

// Publish emits one event. Failures are logged, never propagated: audit
// delivery must not fail a grading transition.
func (p *Publisher) Publish(kind string, submissionID uint, actorID uint, actorKind string, detail map[string]any) {
	if p == nil {
		return
	}

	event := Event{
		ID:           uuid.NewString(),
		Kind:         kind,
		SubmissionID: submissionID,
		ActorID:      actorID,
		ActorKind:    actorKind,
		Detail:       detail,
		EmittedAt:    time.Now().UTC(),
	}

	p.logger.Info().
		Str("kind", kind).
		Uint("submission_id", submissionID).
		Uint("actor_id", actorID).
		Msg("audit event")

	if p.conn == nil {
		return
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Str("kind", kind).Msg("failed to encode audit event")
		return
	}

	if err := p.conn.Publish(p.subject+"."+kind, payload); err != nil {
		p.logger.Error().Err(err).Str("kind", kind).Msg("failed to publish audit event")
	}
}
