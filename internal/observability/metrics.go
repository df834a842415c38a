package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	queueDepth           *prometheus.GaugeVec
	gradeTransitionsTot  *prometheus.CounterVec
	submissionsReceived  *prometheus.CounterVec
	plagiarismFlagsTotal prometheus.Counter
)

// RegisterMetrics initialises the Prometheus collectors for the grading pipeline.
func RegisterMetrics() {
	registerOnce.Do(func() {
		queueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "grader_queue_depth",
			Help: "Number of submissions waiting for a sandbox worker.",
		}, []string{"exercise"})

		gradeTransitionsTot = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_grade_transitions_total",
			Help: "Grade state transitions by target status.",
		}, []string{"status"})

		submissionsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "grader_submissions_received_total",
			Help: "Submissions accepted for evaluation by language.",
		}, []string{"language"})

		plagiarismFlagsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "grader_plagiarism_flags_total",
			Help: "Similarity reports that crossed the match threshold.",
		})

		prometheus.MustRegister(queueDepth, gradeTransitionsTot, submissionsReceived, plagiarismFlagsTotal)
	})
}

// QueueDepth exposes the dispatcher backlog gauge.
func QueueDepth() *prometheus.GaugeVec {
	RegisterMetrics()
	return queueDepth
}

// GradeTransitions exposes the grade transition counter.
func GradeTransitions() *prometheus.CounterVec {
	RegisterMetrics()
	return gradeTransitionsTot
}

// SubmissionsReceived exposes the accepted submission counter.
func SubmissionsReceived() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsReceived
}

// PlagiarismFlags exposes the plagiarism flag counter.
func PlagiarismFlags() prometheus.Counter {
	RegisterMetrics()
	return plagiarismFlagsTotal
}
