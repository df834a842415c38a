package sandbox

import "context"

// Mux routes requests to the runner responsible for the declared language.
// SQL submissions go to the schema-scoped runner, everything else to Docker.
type Mux struct {
	sqlRunner    Runner
	dockerRunner Runner
}

// NewMux constructs the routing runner.
func NewMux(sqlRunner, dockerRunner Runner) *Mux {
	return &Mux{sqlRunner: sqlRunner, dockerRunner: dockerRunner}
}

// Run dispatches to the language-appropriate runner.
func (m *Mux) Run(ctx context.Context, req Request) (Outcome, error) {
	switch req.Language {
	case "sql":
		if m.sqlRunner == nil {
			return Outcome{}, ErrUnsupportedLanguage
		}
		return m.sqlRunner.Run(ctx, req)
	case "javascript", "python", "java", "cpp":
		if m.dockerRunner == nil {
			return Outcome{}, ErrUnsupportedLanguage
		}
		return m.dockerRunner.Run(ctx, req)
	default:
		return Outcome{}, ErrUnsupportedLanguage
	}
}
