package sandbox

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	statements := splitStatements("CREATE TABLE t (id INT);\nINSERT INTO t VALUES (1);\n\nSELECT * FROM t;  ")
	require.Equal(t, []string{
		"CREATE TABLE t (id INT)",
		"INSERT INTO t VALUES (1)",
		"SELECT * FROM t",
	}, statements)

	require.Empty(t, splitStatements("  ;;  "))
}

func TestSplitStatementsKeepsQuotedSemicolons(t *testing.T) {
	statements := splitStatements("INSERT INTO t VALUES ('a;b'); SELECT * FROM t;")
	require.Equal(t, []string{"INSERT INTO t VALUES ('a;b')", "SELECT * FROM t"}, statements)

	statements = splitStatements("INSERT INTO t VALUES ('it''s; quoted'); SELECT 1")
	require.Equal(t, []string{"INSERT INTO t VALUES ('it''s; quoted')", "SELECT 1"}, statements)

	statements = splitStatements(`SELECT ';' AS "col;name"; SELECT 2`)
	require.Equal(t, []string{`SELECT ';' AS "col;name"`, "SELECT 2"}, statements)

	// an unterminated literal swallows the rest instead of splitting it
	statements = splitStatements("SELECT 'a;b")
	require.Equal(t, []string{"SELECT 'a;b"}, statements)
}

func runDurationSamples(t *testing.T, language string) uint64 {
	t.Helper()
	observer, err := runDuration.GetMetricWithLabelValues(language)
	require.NoError(t, err)
	metric, ok := observer.(prometheus.Metric)
	require.True(t, ok)
	var out dto.Metric
	require.NoError(t, metric.Write(&out))
	return out.GetHistogram().GetSampleCount()
}

func TestSQLRunnerStatementCapObservesDuration(t *testing.T) {
	runner := NewSQLRunner(nil, SQLConfig{StatementCap: 2, Logger: zerolog.New(io.Discard)})
	before := runDurationSamples(t, "sql")

	outcome, err := runner.Run(context.Background(), Request{
		Language: "sql",
		Source:   "SELECT 1; SELECT 2; SELECT 3;",
	})
	require.NoError(t, err)
	require.Equal(t, ClassResourceExceeded, outcome.Classification)
	require.Contains(t, outcome.Stderr, "exceeds the limit")
	require.Equal(t, 1, outcome.ExitCode)
	require.Equal(t, before+1, runDurationSamples(t, "sql"))
}

func TestReturnsRows(t *testing.T) {
	require.True(t, returnsRows("SELECT 1"))
	require.True(t, returnsRows("select id from t"))
	require.True(t, returnsRows("WITH cte AS (SELECT 1) SELECT * FROM cte"))
	require.True(t, returnsRows("VALUES (1), (2)"))
	require.False(t, returnsRows("INSERT INTO t VALUES (1)"))
	require.False(t, returnsRows("CREATE TABLE t (id INT)"))
	require.False(t, returnsRows("DROP TABLE t"))
}

func TestRenderValue(t *testing.T) {
	require.Equal(t, "NULL", renderValue(nil))
	require.Equal(t, "hello", renderValue([]byte("hello")))
	require.Equal(t, "42", renderValue(int64(42)))

	stamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	require.Equal(t, "2026-03-14T09:26:53Z", renderValue(stamp))
}
