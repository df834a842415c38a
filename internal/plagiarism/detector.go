package plagiarism

import (
	"sort"

	"github.com/rs/zerolog"
)

// Defaults used when the corresponding Config field is left zero.
const (
	DefaultMatchThreshold = 0.8
	DefaultMinTokens      = 8
	shingleSize           = 3
)

// Config groups detector tuning knobs.
type Config struct {
	MatchThreshold float64
	MinTokens      int
	Logger         zerolog.Logger
}

// CorpusEntry is one prior accepted submission considered for comparison.
type CorpusEntry struct {
	SubmissionID uint
	AuthorID     uint
	Language     string
	Source       string
}

// Report is the detector's verdict for one submission against a corpus.
type Report struct {
	Score              float64
	Threshold          float64
	Matches            []uint
	InsufficientLength bool
}

// Detector computes token-shingle Jaccard similarity between a submission
// and a bounded corpus. Identical inputs always yield identical scores.
type Detector struct {
	threshold float64
	minTokens int
	logger    zerolog.Logger
}

// NewDetector constructs a detector with the given configuration.
func NewDetector(cfg Config) *Detector {
	if cfg.MatchThreshold <= 0 {
		cfg.MatchThreshold = DefaultMatchThreshold
	}
	if cfg.MinTokens <= 0 {
		cfg.MinTokens = DefaultMinTokens
	}

	return &Detector{
		threshold: cfg.MatchThreshold,
		minTokens: cfg.MinTokens,
		logger:    cfg.Logger.With().Str("component", "plagiarism_detector").Logger(),
	}
}

// Detect scores the submission against every corpus entry, excluding the
// submission author's own prior work. The report carries the maximum score
// and the set of corpus members at or above the match threshold.
func (d *Detector) Detect(language, source string, authorID uint, corpus []CorpusEntry) Report {
	report := Report{Threshold: d.threshold}

	tokens := Normalize(language, source)
	if len(tokens) < d.minTokens {
		report.InsufficientLength = true
		return report
	}

	shingles := shingle(tokens)
	for _, entry := range corpus {
		if entry.AuthorID == authorID {
			continue
		}

		otherTokens := Normalize(entry.Language, entry.Source)
		if len(otherTokens) < d.minTokens {
			continue
		}

		score := jaccard(shingles, shingle(otherTokens))
		if score > report.Score {
			report.Score = score
		}
		if score >= d.threshold {
			report.Matches = append(report.Matches, entry.SubmissionID)
		}
	}

	sort.Slice(report.Matches, func(i, j int) bool { return report.Matches[i] < report.Matches[j] })
	return report
}

// shingle builds the set of n-token windows over the normalized stream.
// Streams shorter than the window contribute a single shingle so short but
// scorable submissions still compare.
func shingle(tokens []string) map[string]struct{} {
	set := make(map[string]struct{})
	if len(tokens) < shingleSize {
		set[join(tokens)] = struct{}{}
		return set
	}

	for i := 0; i+shingleSize <= len(tokens); i++ {
		set[join(tokens[i:i+shingleSize])] = struct{}{}
	}
	return set
}

func join(tokens []string) string {
	out := ""
	for i, token := range tokens {
		if i > 0 {
			out += "\x00"
		}
		out += token
	}
	return out
}

// jaccard is |A ∩ B| / |A ∪ B|. Symmetric by construction.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for key := range a {
		if _, ok := b[key]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
