package plagiarism

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/grader-go-api/internal/models"
)

const pythonSample = `
def total(items):
    # running sum
    result = 0
    for item in items:
        result = result + item
    return result
`

func TestDetectIdenticalSourcesScoreOne(t *testing.T) {
	detector := NewDetector(Config{})

	report := detector.Detect(models.LanguagePython, pythonSample, 1, []CorpusEntry{
		{SubmissionID: 7, AuthorID: 2, Language: models.LanguagePython, Source: pythonSample},
	})

	require.InDelta(t, 1.0, report.Score, 1e-9)
	require.Equal(t, []uint{7}, report.Matches)
	require.False(t, report.InsufficientLength)
}

func TestDetectIsSymmetric(t *testing.T) {
	detector := NewDetector(Config{})
	other := `
def total(values):
    result = 0
    for value in values:
        result = result + value
    return result
`

	forward := detector.Detect(models.LanguagePython, pythonSample, 1, []CorpusEntry{{SubmissionID: 2, AuthorID: 2, Language: models.LanguagePython, Source: other}})
	backward := detector.Detect(models.LanguagePython, other, 2, []CorpusEntry{{SubmissionID: 1, AuthorID: 1, Language: models.LanguagePython, Source: pythonSample}})

	require.InDelta(t, forward.Score, backward.Score, 1e-9)
}

func TestDetectIgnoresOwnPriorWork(t *testing.T) {
	detector := NewDetector(Config{})

	report := detector.Detect(models.LanguagePython, pythonSample, 1, []CorpusEntry{
		{SubmissionID: 3, AuthorID: 1, Language: models.LanguagePython, Source: pythonSample},
	})

	require.Zero(t, report.Score)
	require.Empty(t, report.Matches)
}

func TestDetectShortSubmissionIsInsufficient(t *testing.T) {
	detector := NewDetector(Config{})

	report := detector.Detect(models.LanguagePython, "x = 1", 1, []CorpusEntry{
		{SubmissionID: 4, AuthorID: 2, Language: models.LanguagePython, Source: pythonSample},
	})

	require.True(t, report.InsufficientLength)
	require.Zero(t, report.Score)
	require.Empty(t, report.Matches)
}

func TestDetectSQLIdentifierRenamingDoesNotHideCopying(t *testing.T) {
	detector := NewDetector(Config{})

	original := `SELECT name, total FROM orders WHERE total > 100 ORDER BY total DESC;`
	renamed := `SELECT title, amount FROM purchases WHERE amount > 100 ORDER BY amount DESC;`

	report := detector.Detect(models.LanguageSQL, renamed, 2, []CorpusEntry{
		{SubmissionID: 9, AuthorID: 1, Language: models.LanguageSQL, Source: original},
	})

	require.InDelta(t, 1.0, report.Score, 1e-9)
	require.Equal(t, []uint{9}, report.Matches)
}

func TestDetectCommentsAndWhitespaceAreIgnored(t *testing.T) {
	detector := NewDetector(Config{})
	commented := `
def total(items):
    result = 0   # accumulator
    for item in items:
        # add each one
        result = result + item
    return result
`

	report := detector.Detect(models.LanguagePython, commented, 1, []CorpusEntry{
		{SubmissionID: 5, AuthorID: 2, Language: models.LanguagePython, Source: pythonSample},
	})

	require.InDelta(t, 1.0, report.Score, 1e-9)
}

func TestDetectIsDeterministic(t *testing.T) {
	detector := NewDetector(Config{})
	corpus := []CorpusEntry{
		{SubmissionID: 1, AuthorID: 2, Language: models.LanguagePython, Source: pythonSample},
		{SubmissionID: 2, AuthorID: 3, Language: models.LanguagePython, Source: "def nothing():\n    return None\n"},
	}

	first := detector.Detect(models.LanguagePython, pythonSample, 9, corpus)
	for i := 0; i < 10; i++ {
		again := detector.Detect(models.LanguagePython, pythonSample, 9, corpus)
		require.Equal(t, first, again)
	}
}

func TestNormalizeSQLCanonicalizesIdentifiers(t *testing.T) {
	tokens := Normalize(models.LanguageSQL, "SELECT name FROM users -- comment\nWHERE name IS NOT NULL")

	require.Equal(t, []string{"select", "id0", "from", "id1", "where", "id0", "is", "not", "null"}, tokens)
}
