package sandbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

// SQLConfig groups SQL runner configuration values.
type SQLConfig struct {
	Timeout      time.Duration
	StatementCap int
	Logger       zerolog.Logger
}

// SQLRunner executes SQL submissions against a disposable schema created for
// the run and dropped afterwards. Statements never touch shared schemas: the
// session search_path is pinned to the sandbox schema for its whole lifetime.
type SQLRunner struct {
	db     *gorm.DB
	cfg    SQLConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewSQLRunner constructs a SQL sandbox runner on top of the shared database
// handle. Each run still gets an exclusive connection and schema.
func NewSQLRunner(db *gorm.DB, cfg SQLConfig) *SQLRunner {
	if cfg.StatementCap <= 0 {
		cfg.StatementCap = 100
	}

	return &SQLRunner{
		db:     db,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/noah-isme/grader-go-api/pkg/sandbox"),
		logger: cfg.Logger.With().Str("component", "sql_runner").Logger(),
	}
}

// Run executes the submission's statements inside a dedicated schema on a
// dedicated connection. The schema is dropped on every exit path.
func (r *SQLRunner) Run(parent context.Context, req Request) (Outcome, error) {
	if req.Language != "sql" {
		return Outcome{}, ErrUnsupportedLanguage
	}

	ctx, span := r.tracer.Start(parent, "sandbox.sql.run", trace.WithAttributes(
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

	statements := splitStatements(req.Source)
	start := time.Now()

	if len(statements) > r.cfg.StatementCap {
		outcome := Outcome{
			Classification: ClassResourceExceeded,
			Stderr:         fmt.Sprintf("statement count %d exceeds the limit of %d", len(statements), r.cfg.StatementCap),
			ExitCode:       1,
			Duration:       time.Since(start),
		}
		outcome.observe(req.Language)
		return outcome, nil
	}

	sqlDB, err := r.db.DB()
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: acquire pool: %v", ErrInfrastructure, err)
	}

	// search_path is session state, so the whole run owns one connection
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: acquire connection: %v", ErrInfrastructure, err)
	}
	defer conn.Close()

	schema := "sandbox_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	span.SetAttributes(attribute.String("sandbox.schema", schema))

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema)); err != nil {
		return Outcome{}, fmt.Errorf("%w: create schema: %v", ErrInfrastructure, err)
	}

	defer func() {
		dropCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := sqlDB.ExecContext(dropCtx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", schema)); err != nil {
			r.logger.Error().Err(err).Str("schema", schema).Msg("failed to drop sandbox schema")
		}
	}()

	if _, err := conn.ExecContext(ctx, fmt.Sprintf("SET search_path TO %s", schema)); err != nil {
		return Outcome{}, fmt.Errorf("%w: set search_path: %v", ErrInfrastructure, err)
	}

	var stdout strings.Builder
	for _, statement := range statements {
		if err := r.runStatement(ctx, conn, statement, &stdout); err != nil {
			outcome := Outcome{
				Stdout:   stdout.String(),
				Stderr:   err.Error(),
				ExitCode: 1,
				Duration: time.Since(start),
			}
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
				outcome.Classification = ClassTimeout
				runTimeouts.WithLabelValues(req.Language).Inc()
			} else {
				outcome.Classification = ClassRuntimeError
			}
			outcome.observe(req.Language)
			return outcome, nil
		}
	}

	outcome := Outcome{
		Classification: ClassSuccess,
		Stdout:         stdout.String(),
		Duration:       time.Since(start),
	}
	outcome.observe(req.Language)
	return outcome, nil
}

func (o Outcome) observe(language string) {
	runDuration.WithLabelValues(language).Observe(o.Duration.Seconds())
}

func (r *SQLRunner) runStatement(ctx context.Context, conn *sql.Conn, statement string, stdout *strings.Builder) error {
	if !returnsRows(statement) {
		result, err := conn.ExecContext(ctx, statement)
		if err != nil {
			return err
		}
		if affected, err := result.RowsAffected(); err == nil && affected > 0 {
			fmt.Fprintf(stdout, "%d row(s) affected\n", affected)
		}
		return nil
	}

	rows, err := conn.QueryContext(ctx, statement)
	if err != nil {
		return err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return err
	}

	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return err
		}

		fields := make([]string, len(values))
		for i, value := range values {
			fields[i] = renderValue(value)
		}
		stdout.WriteString(strings.Join(fields, "\t"))
		stdout.WriteString("\n")
	}

	return rows.Err()
}

func returnsRows(statement string) bool {
	head := strings.ToUpper(strings.Fields(statement)[0])
	switch head {
	case "SELECT", "WITH", "SHOW", "TABLE", "VALUES":
		return true
	default:
		return false
	}
}

func renderValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(v)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// splitStatements cuts the source on semicolons outside quoted regions.
// Single-quoted literals and double-quoted identifiers may contain
// semicolons, and a doubled quote escapes itself inside its own region.
func splitStatements(source string) []string {
	statements := make([]string, 0, 8)
	var current strings.Builder
	var quote byte

	flush := func() {
		if trimmed := strings.TrimSpace(current.String()); trimmed != "" {
			statements = append(statements, trimmed)
		}
		current.Reset()
	}

	for i := 0; i < len(source); i++ {
		c := source[i]
		switch {
		case quote != 0:
			current.WriteByte(c)
			if c == quote {
				if i+1 < len(source) && source[i+1] == quote {
					current.WriteByte(quote)
					i++
				} else {
					quote = 0
				}
			}
		case c == '\'' || c == '"':
			quote = c
			current.WriteByte(c)
		case c == ';':
			flush()
		default:
			current.WriteByte(c)
		}
	}
	flush()
	return statements
}
