package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the research answer service.
// Metrics are organized by subsystem: questions, pipeline stages, searches,
// sources, the query cache, LLM operations and the answer archive.
type Metrics struct {
	// QuestionsStarted counts the total number of questions received by the pipeline.
	QuestionsStarted prometheus.Counter

	// QuestionsCompleted counts answered questions, labeled by answer mode.
	QuestionsCompleted *prometheus.CounterVec

	// QuestionsFailed counts failed questions, labeled by the stage that failed.
	QuestionsFailed *prometheus.CounterVec

	// QuestionDuration observes the end-to-end duration of questions in seconds.
	QuestionDuration prometheus.Histogram

	// StageDuration observes the duration of each pipeline stage in seconds.
	StageDuration *prometheus.HistogramVec

	// SearchesStarted counts searches initiated, labeled by paper source.
	SearchesStarted *prometheus.CounterVec

	// SearchesCompleted counts successful searches, labeled by paper source.
	SearchesCompleted *prometheus.CounterVec

	// SearchesFailed counts failed searches, labeled by paper source.
	SearchesFailed *prometheus.CounterVec

	// SearchDuration observes search duration in seconds, labeled by paper source.
	SearchDuration *prometheus.HistogramVec

	// PapersPerSearch observes the distribution of papers returned per search, labeled by source.
	PapersPerSearch *prometheus.HistogramVec

	// PapersDuplicate counts the total number of duplicate papers removed during deduplication.
	PapersDuplicate prometheus.Counter

	// SourceRateLimited counts rate-limited responses from paper source APIs, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// CacheLookups counts query cache lookups, labeled by result (hit, miss).
	CacheLookups *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by provider, tier and status.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by provider and tier.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM operations, labeled by provider, tier and token type.
	LLMTokensUsed *prometheus.CounterVec

	// AnswersArchived counts archive writes, labeled by status.
	AnswersArchived *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance registered with the default
// Prometheus registry. The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegistry creates a new Metrics instance registered with reg.
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		// Questions
		QuestionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_started_total",
			Help:      "Total number of research questions started",
		}),
		QuestionsCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_completed_total",
			Help:      "Total number of research questions answered, by answer mode",
		}, []string{"mode"}),
		QuestionsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "questions_failed_total",
			Help:      "Total number of research questions that failed, by stage",
		}, []string{"stage"}),
		QuestionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "question_duration_seconds",
			Help:      "Duration of research questions in seconds",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 180, 300},
		}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),

		// Searches
		SearchesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_started_total",
			Help:      "Total number of searches started by source",
		}, []string{"source"}),
		SearchesCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_completed_total",
			Help:      "Total number of searches completed by source",
		}, []string{"source"}),
		SearchesFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "searches_failed_total",
			Help:      "Total number of searches failed by source",
		}, []string{"source"}),
		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Duration of searches in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"source"}),
		PapersPerSearch: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "papers_per_search",
			Help:      "Number of papers returned per search",
			Buckets:   []float64{0, 1, 5, 10, 20, 50, 100},
		}, []string{"source"}),
		PapersDuplicate: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_duplicate_total",
			Help:      "Total number of duplicate papers removed",
		}),
		SourceRateLimited: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from sources",
		}, []string{"source"}),

		// Cache
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Total number of query cache lookups by result",
		}, []string{"result"}),

		// LLM
		LLMRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM API requests",
		}, []string{"provider", "tier", "status"}),
		LLMRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM API requests in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 180},
		}, []string{"provider", "tier"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM operations",
		}, []string{"provider", "tier", "type"}),

		// Archive
		AnswersArchived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_archived_total",
			Help:      "Total number of answer archive writes by status",
		}, []string{"status"}),
	}
}

// RecordQuestionStarted records that a question has entered the pipeline.
func (m *Metrics) RecordQuestionStarted() {
	m.QuestionsStarted.Inc()
}

// RecordQuestionCompleted records an answered question.
func (m *Metrics) RecordQuestionCompleted(mode string, durationSeconds float64) {
	m.QuestionsCompleted.WithLabelValues(mode).Inc()
	m.QuestionDuration.Observe(durationSeconds)
}

// RecordQuestionFailed records a failed question.
func (m *Metrics) RecordQuestionFailed(stage string, durationSeconds float64) {
	m.QuestionsFailed.WithLabelValues(stage).Inc()
	m.QuestionDuration.Observe(durationSeconds)
}

// RecordStageDuration records how long a pipeline stage took.
func (m *Metrics) RecordStageDuration(stage string, durationSeconds float64) {
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordSearchStarted records that a search has started.
func (m *Metrics) RecordSearchStarted(source string) {
	m.SearchesStarted.WithLabelValues(source).Inc()
}

// RecordSearchCompleted records that a search has completed.
func (m *Metrics) RecordSearchCompleted(source string, paperCount int, durationSeconds float64) {
	m.SearchesCompleted.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
	m.PapersPerSearch.WithLabelValues(source).Observe(float64(paperCount))
}

// RecordSearchFailed records that a search has failed.
func (m *Metrics) RecordSearchFailed(source string, durationSeconds float64) {
	m.SearchesFailed.WithLabelValues(source).Inc()
	m.SearchDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordPaperDuplicates records multiple duplicate papers in a single call.
func (m *Metrics) RecordPaperDuplicates(count int) {
	m.PapersDuplicate.Add(float64(count))
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordCacheLookup records a query cache hit or miss.
func (m *Metrics) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(provider, tier, status string, duration time.Duration) {
	m.LLMRequestsTotal.WithLabelValues(provider, tier, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, tier).Observe(duration.Seconds())
}

// RecordLLMTokens records token usage of an LLM request.
func (m *Metrics) RecordLLMTokens(provider, tier string, inputTokens, outputTokens int) {
	m.LLMTokensUsed.WithLabelValues(provider, tier, "input").Add(float64(inputTokens))
	m.LLMTokensUsed.WithLabelValues(provider, tier, "output").Add(float64(outputTokens))
}

// RecordAnswerArchived records an archive write.
func (m *Metrics) RecordAnswerArchived(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.AnswersArchived.WithLabelValues(status).Inc()
}
