package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Note: prometheus/promauto registers metrics globally, so tests either use
// unique namespaces or their own registry.

func newTestMetrics() *Metrics {
	return NewMetricsWithRegistry("test", prometheus.NewRegistry())
}

func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test_research_answer_new")

	assert.NotNil(t, m.QuestionsStarted)
	assert.NotNil(t, m.QuestionsCompleted)
	assert.NotNil(t, m.QuestionsFailed)
	assert.NotNil(t, m.StageDuration)
	assert.NotNil(t, m.SearchesStarted)
	assert.NotNil(t, m.SearchesCompleted)
	assert.NotNil(t, m.SearchesFailed)
	assert.NotNil(t, m.PapersDuplicate)
	assert.NotNil(t, m.SourceRateLimited)
	assert.NotNil(t, m.CacheLookups)
	assert.NotNil(t, m.LLMRequestsTotal)
	assert.NotNil(t, m.LLMTokensUsed)
	assert.NotNil(t, m.AnswersArchived)
}

func TestNewMetricsWithRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWithRegistry("isolated", reg)
	m.RecordQuestionStarted()

	count, err := testutil.GatherAndCount(reg, "isolated_questions_started_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// A second registry accepts the same names.
	assert.NotPanics(t, func() { NewMetricsWithRegistry("isolated", prometheus.NewRegistry()) })
}

func TestRecordQuestionLifecycle(t *testing.T) {
	m := newTestMetrics()

	m.RecordQuestionStarted()
	m.RecordQuestionStarted()
	m.RecordQuestionCompleted("cited", 12.5)
	m.RecordQuestionFailed("retrieving", 3)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.QuestionsStarted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QuestionsCompleted.WithLabelValues("cited")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.QuestionsFailed.WithLabelValues("retrieving")))

	histCount, err := getHistogramSampleCount(m.QuestionDuration)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), histCount)
}

func TestRecordStageDuration(t *testing.T) {
	m := newTestMetrics()

	m.RecordStageDuration("analyzing", 4.2)
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))
}

func TestRecordSearches(t *testing.T) {
	m := newTestMetrics()

	m.RecordSearchStarted("arXiv")
	m.RecordSearchStarted("arXiv")
	m.RecordSearchCompleted("arXiv", 10, 1.5)
	m.RecordSearchFailed("arXiv", 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.SearchesStarted.WithLabelValues("arXiv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesCompleted.WithLabelValues("arXiv")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SearchesFailed.WithLabelValues("arXiv")))
}

func TestRecordPaperDuplicates(t *testing.T) {
	m := newTestMetrics()

	m.RecordPaperDuplicates(3)
	m.RecordPaperDuplicates(2)
	assert.Equal(t, float64(5), testutil.ToFloat64(m.PapersDuplicate))
}

func TestRecordSourceRateLimited(t *testing.T) {
	m := newTestMetrics()

	m.RecordSourceRateLimited("PubMed")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SourceRateLimited.WithLabelValues("PubMed")))
}

func TestRecordCacheLookup(t *testing.T) {
	m := newTestMetrics()

	m.RecordCacheLookup(true)
	m.RecordCacheLookup(false)
	m.RecordCacheLookup(false)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CacheLookups.WithLabelValues("hit")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CacheLookups.WithLabelValues("miss")))
}

func TestRecordLLM(t *testing.T) {
	m := newTestMetrics()

	m.RecordLLMRequest("anthropic", "cheap", "success", 2500*time.Millisecond)
	m.RecordLLMTokens("anthropic", "cheap", 100, 50)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequestsTotal.WithLabelValues("anthropic", "cheap", "success")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "cheap", "input")))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("anthropic", "cheap", "output")))
}

func TestRecordAnswerArchived(t *testing.T) {
	m := newTestMetrics()

	m.RecordAnswerArchived(true)
	m.RecordAnswerArchived(false)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AnswersArchived.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AnswersArchived.WithLabelValues("error")))
}

// Helper to get histogram sample count
func getHistogramSampleCount(h prometheus.Histogram) (uint64, error) {
	ch := make(chan prometheus.Metric, 1)
	h.Collect(ch)
	close(ch)

	var m prometheus.Metric
	for m = range ch {
		break
	}

	var dto = &dto.Metric{}
	if err := m.Write(dto); err != nil {
		return 0, err
	}

	return dto.Histogram.GetSampleCount(), nil
}
