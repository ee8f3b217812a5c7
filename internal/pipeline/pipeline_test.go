package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/research-answer-service/internal/aggregator"
	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/llm"
	"github.com/helixir/research-answer-service/internal/llm/llmtest"
	"github.com/helixir/research-answer-service/internal/papersources"
	"github.com/helixir/research-answer-service/internal/relevance"
)

// --- fakes ---

type staticExpander []string

func (s staticExpander) Expand(_ context.Context, query string) []string {
	if len(s) == 0 {
		return []string{query}
	}
	return s
}

type searcherFunc func(ctx context.Context, terms []string, perCallLimit int) []papersources.SourceResult

func (f searcherFunc) SearchTerms(ctx context.Context, terms []string, perCallLimit int) []papersources.SourceResult {
	return f(ctx, terms, perCallLimit)
}

type aggregatorFunc func(ctx context.Context, query string, targetCount int) ([]domain.PaperRecord, error)

func (f aggregatorFunc) Aggregate(ctx context.Context, query string, targetCount int) ([]domain.PaperRecord, error) {
	return f(ctx, query, targetCount)
}

type passThroughFilter struct{}

func (passThroughFilter) Filter(_ context.Context, _ string, papers []domain.PaperRecord, maxPapers int) []domain.PaperRecord {
	if len(papers) > maxPapers {
		return papers[:maxPapers]
	}
	return papers
}

type fakeArchive struct {
	mu      sync.Mutex
	records []*domain.AnswerRecord
	err     error
}

func (f *fakeArchive) Save(_ context.Context, record *domain.AnswerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, record)
	return nil
}

type fakeRecorder struct {
	mu        sync.Mutex
	started   int
	completed map[string]int
	failed    map[string]int
	stages    []string
	archived  []bool
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{completed: map[string]int{}, failed: map[string]int{}}
}

func (f *fakeRecorder) RecordQuestionStarted() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeRecorder) RecordQuestionCompleted(mode string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed[mode]++
}

func (f *fakeRecorder) RecordQuestionFailed(stage string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed[stage]++
}

func (f *fakeRecorder) RecordStageDuration(stage string, _ float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages = append(f.stages, stage)
}

func (f *fakeRecorder) RecordAnswerArchived(success bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, success)
}

// hangingClient streams nothing and closes its channel when ctx ends,
// the way the real providers behave on cancellation.
type hangingClient struct {
	llm.Client
}

func (hangingClient) Stream(ctx context.Context, _ llm.Request) (<-chan llm.Chunk, error) {
	out := make(chan llm.Chunk)
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

// --- helpers ---

// scriptedModel answers each pipeline prompt by its system prompt. Anything
// else is the relevance filter asking for indices.
type scriptedModel struct {
	evaluation string
	direct     []string
	analysis   []string
	answer     []string
	selection  string
}

func (m scriptedModel) client() *llmtest.Scripted {
	return llmtest.Func(func(req llm.Request) llmtest.Reply {
		switch req.System {
		case evaluateSystemPrompt:
			return llmtest.Text(m.evaluation)
		case directSystemPrompt:
			return llmtest.Reply{Chunks: m.direct}
		case analysisSystemPrompt:
			return llmtest.Reply{Chunks: m.analysis}
		case answerSystemPrompt:
			return llmtest.Reply{Chunks: m.answer}
		default:
			return llmtest.Text(m.selection)
		}
	})
}

func researchPaper(title, author, year string, src domain.SourceType, citations int) domain.PaperRecord {
	p := domain.PaperRecord{
		ID:            strings.ToLower(strings.ReplaceAll(title, " ", "-")),
		Title:         title,
		Abstract:      "We report results on " + strings.ToLower(title) + ".",
		Authors:       []string{author},
		Year:          year,
		CitationCount: citations,
		Link:          "https://example.org/" + strings.ReplaceAll(title, " ", "_"),
		Source:        src,
	}
	p.Normalize()
	return p
}

func sourceResult(src domain.SourceType, term string, papers ...domain.PaperRecord) papersources.SourceResult {
	return papersources.SourceResult{
		Source: src,
		Term:   term,
		Result: &papersources.SearchResult{Papers: papers, TotalResults: len(papers), Source: src},
	}
}

var graphenePapers = []struct {
	title  string
	author string
	year   string
}{
	{"Graphene transistors at room temperature", "Andre Geim", "2019"},
	{"Thermal conductivity of suspended graphene", "Alexander Balandin", "2018"},
	{"Graphene oxide membranes for desalination", "Rahul Nair", "2021"},
	{"Quantum Hall effect in bilayer graphene", "Philip Kim", "2015"},
	{"Large scale growth of graphene films", "Xuesong Li", "2020"},
	{"Graphene plasmonics for light harvesting", "Frank Koppens", "2022"},
	{"Superconductivity in twisted bilayer graphene", "Pablo Jarillo-Herrero", "2018"},
	{"Spin transport in graphene nanoribbons", "Bart van Wees", "2017"},
	{"Graphene based supercapacitors", "Rodney Ruoff", "2016"},
	{"Mechanical strength of monolayer graphene", "James Hone", "2014"},
	{"Graphene photodetectors in the infrared", "Thomas Mueller", "2023"},
	{"Biocompatibility of graphene coatings", "Kostya Novoselov", "2024"},
}

// graphSearcher returns 30 raw records from four sources covering 12
// distinct papers. Repeats differ in case and punctuation only.
func graphSearcher() searcherFunc {
	return func(_ context.Context, terms []string, _ int) []papersources.SourceResult {
		term := terms[0]
		var s2, arxiv, pubmed, core []domain.PaperRecord
		for i, g := range graphenePapers {
			s2 = append(s2, researchPaper(g.title, g.author, g.year, domain.SourceTypeSemanticScholar, 100-i))
			if i < 8 {
				arxiv = append(arxiv, researchPaper(strings.ToUpper(g.title), g.author, g.year, domain.SourceTypeArXiv, 0))
			}
			if i < 6 {
				pubmed = append(pubmed, researchPaper(g.title+".", g.author, g.year, domain.SourceTypePubMed, 3))
			}
			if i < 4 {
				core = append(core, researchPaper(g.title+"!", g.author, g.year, domain.SourceTypeCORE, 1))
			}
		}
		return []papersources.SourceResult{
			sourceResult(domain.SourceTypeSemanticScholar, term, s2...),
			sourceResult(domain.SourceTypeArXiv, term, arxiv...),
			sourceResult(domain.SourceTypePubMed, term, pubmed...),
			sourceResult(domain.SourceTypeCORE, term, core...),
		}
	}
}

func emptySearcher() searcherFunc {
	return func(_ context.Context, terms []string, _ int) []papersources.SourceResult {
		return []papersources.SourceResult{
			sourceResult(domain.SourceTypeSemanticScholar, terms[0]),
			sourceResult(domain.SourceTypeArXiv, terms[0]),
			sourceResult(domain.SourceTypePubMed, terms[0]),
			sourceResult(domain.SourceTypeCORE, terms[0]),
		}
	}
}

func newAggregator(searcher aggregator.Searcher) *aggregator.Aggregator {
	return aggregator.New(staticExpander(nil), searcher, nil, nil, aggregator.Config{}, zerolog.Nop()).
		WithClock(func() time.Time { return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC) })
}

func tokens(events []domain.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Status == domain.EventToken {
			out = append(out, ev.Token)
		}
	}
	return out
}

func last(events []domain.Event) domain.Event {
	return events[len(events)-1]
}

// --- scenarios ---

func TestPipeline_DirectAnswer(t *testing.T) {
	model := scriptedModel{
		evaluation: "```json\n{\"canAnswer\": true, \"answer\": \"4\"}\n```",
		direct:     []string{"2 + 2 ", "equals ", "4."},
	}
	client := model.client()
	agg := aggregatorFunc(func(context.Context, string, int) ([]domain.PaperRecord, error) {
		t.Fatal("aggregator must not be called for a direct answer")
		return nil, nil
	})
	recorder := newFakeRecorder()

	p := New(Deps{Client: client, Aggregator: agg, Filter: passThroughFilter{}, Recorder: recorder}, Config{}, zerolog.Nop())
	events := &Collector{}

	result, err := p.Run(context.Background(), "What is 2+2?", events)
	require.NoError(t, err)

	assert.Equal(t, "2 + 2 equals 4.", result.Answer)
	assert.NotNil(t, result.Citations)
	assert.Empty(t, result.Citations)
	assert.Equal(t, "no citations were required", result.Note)
	assert.Equal(t, domain.AnswerModeDirect, result.Mode)
	assert.Equal(t, []string{
		stageLabels[domain.StageEvaluating],
		stageLabels[domain.StageGeneratingDirect],
	}, result.ProcessSteps)

	assert.Equal(t, []domain.EventStatus{
		domain.EventConnected,
		domain.EventStageUpdate,
		domain.EventStageUpdate,
		domain.EventStreaming,
		domain.EventToken,
		domain.EventToken,
		domain.EventToken,
		domain.EventChunkComplete,
		domain.EventComplete,
	}, events.Statuses())
	assert.Equal(t, []domain.Stage{domain.StageEvaluating, domain.StageGeneratingDirect}, events.Stages())
	assert.Equal(t, []string{"2 + 2 ", "equals ", "4."}, tokens(events.Events()))

	complete := last(events.Events())
	require.NotNil(t, complete.Result)
	assert.Equal(t, domain.StageDone, complete.Stage)
	assert.Equal(t, result, complete.Result)

	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, llm.TierCheap, calls[0].Request.Tier)
	assert.Equal(t, llm.TierPremium, calls[1].Request.Tier)

	assert.Equal(t, 1, recorder.started)
	assert.Equal(t, 1, recorder.completed["direct"])
	assert.Equal(t, []string{"evaluating", "generating_direct"}, recorder.stages)
}

func TestPipeline_NoPapersFound(t *testing.T) {
	model := scriptedModel{evaluation: `{"canAnswer": false, "queryWord": "xyzzy-nonexistent-term"}`}
	client := model.client()

	p := New(Deps{
		Client:     client,
		Aggregator: newAggregator(emptySearcher()),
		Filter:     relevance.New(client, time.Second, zerolog.Nop()),
	}, Config{}, zerolog.Nop())
	events := &Collector{}

	result, err := p.Run(context.Background(), "What does xyzzy do to frogs?", events)
	require.NoError(t, err)

	assert.Equal(t, domain.AnswerModeNoPapers, result.Mode)
	assert.Empty(t, result.Citations)
	assert.Contains(t, result.Answer, "xyzzy-nonexistent-term")
	assert.Equal(t, "xyzzy-nonexistent-term", result.QueryWord)

	assert.Equal(t, []domain.Stage{domain.StageEvaluating, domain.StageRetrieving}, events.Stages())
	assert.NotContains(t, events.Statuses(), domain.EventToken)

	finding := events.Events()[3]
	assert.Equal(t, domain.EventPapersFinding, finding.Status)
	require.NotNil(t, finding.PaperCount)
	assert.Equal(t, 0, *finding.PaperCount)

	complete := last(events.Events())
	assert.Equal(t, domain.EventComplete, complete.Status)
	assert.Equal(t, result, complete.Result)

	assert.Len(t, client.Calls(), 1, "only the evaluation reaches the model")
}

func TestPipeline_FullPipeline(t *testing.T) {
	model := scriptedModel{
		evaluation: `{"canAnswer": false, "queryWord": "graphene electronics"}`,
		selection:  "[0, 1, 2, 3, 4]",
		analysis:   []string{"Key findings: ", "graphene conducts well [Geim2019]."},
		answer:     []string{"Graphene is a strong conductor ", "[Geim2019]."},
	}
	client := model.client()
	archive := &fakeArchive{}
	recorder := newFakeRecorder()

	p := New(Deps{
		Client:     client,
		Aggregator: newAggregator(graphSearcher()),
		Filter:     relevance.New(client, time.Second, zerolog.Nop()),
		Archive:    archive,
		Recorder:   recorder,
	}, Config{TargetCount: 20, MaxPapers: 5}, zerolog.Nop())
	events := &Collector{}

	result, err := p.Run(context.Background(), "How does graphene behave in transistors?", events)
	require.NoError(t, err)

	assert.Equal(t, []domain.Stage{
		domain.StageEvaluating,
		domain.StageRetrieving,
		domain.StageFiltering,
		domain.StageAnalyzing,
		domain.StageGeneratingCited,
	}, events.Stages())

	all := events.Events()
	var found, selected *domain.Event
	for i := range all {
		switch {
		case all[i].Status == domain.EventPapersFinding:
			found = &all[i]
		case all[i].Status == domain.EventSubstageUpdate && all[i].Substage == "selected":
			selected = &all[i]
		}
	}
	require.NotNil(t, found)
	require.NotNil(t, selected)
	assert.Equal(t, 12, *found.PaperCount, "30 raw records collapse to 12 unique papers")
	assert.Equal(t, 5, *selected.PaperCount)

	assert.Equal(t, domain.AnswerModeCited, result.Mode)
	assert.Len(t, result.Citations, 5)
	assert.Len(t, result.CitationMapping, 5)
	for i, m := range result.CitationMapping {
		assert.Equal(t, result.Citations[i].CitationKey, m.Key)
		assert.Equal(t, result.Citations[i].Title, m.Title)
	}
	assert.Equal(t, "graphene electronics", result.QueryWord)
	assert.Equal(t, "Key findings: graphene conducts well [Geim2019].", result.PaperAnalysis)
	assert.Equal(t, "Graphene is a strong conductor [Geim2019].", result.Answer)
	assert.Equal(t, []string{
		stageLabels[domain.StageEvaluating],
		stageLabels[domain.StageRetrieving],
		stageLabels[domain.StageFiltering],
		stageLabels[domain.StageAnalyzing],
		stageLabels[domain.StageGeneratingCited],
	}, result.ProcessSteps)

	// Stage events precede the tokens of their stage.
	var stage domain.Stage
	for _, ev := range all {
		if ev.Status == domain.EventStageUpdate {
			stage = ev.Stage
		}
		if ev.Status == domain.EventToken {
			assert.Contains(t, []domain.Stage{domain.StageAnalyzing, domain.StageGeneratingCited}, stage)
			assert.Equal(t, stage, ev.Stage)
		}
	}

	complete := last(all)
	assert.Equal(t, domain.EventComplete, complete.Status)
	assert.Equal(t, result, complete.Result)

	calls := client.Calls()
	require.Len(t, calls, 4, "evaluate, filter, one analysis batch, answer")
	assert.Equal(t, "complete", calls[1].Method)
	assert.Contains(t, calls[2].Request.Prompt, "Citation [")
	assert.Equal(t, llm.TierPremium, calls[3].Request.Tier)
	for _, e := range result.Citations {
		assert.Contains(t, calls[3].Request.Prompt, "["+e.CitationKey+"]")
	}

	require.Len(t, archive.records, 1)
	assert.Equal(t, domain.AnswerModeCited, archive.records[0].Mode)
	assert.Equal(t, "How does graphene behave in transistors?", archive.records[0].Question)
	assert.Len(t, archive.records[0].Citations, 5)
	assert.Equal(t, []bool{true}, recorder.archived)
	assert.Equal(t, 1, recorder.completed["cited"])
}

func TestPipeline_AnalysisBatches(t *testing.T) {
	var papers []domain.PaperRecord
	for i, g := range graphenePapers[:7] {
		papers = append(papers, researchPaper(g.title, g.author, g.year, domain.SourceTypeArXiv, i))
	}

	batch := 0
	client := llmtest.Func(func(req llm.Request) llmtest.Reply {
		switch req.System {
		case evaluateSystemPrompt:
			return llmtest.Text(`{"canAnswer": false, "queryWord": "graphene"}`)
		case analysisSystemPrompt:
			batch++
			return llmtest.Text(fmt.Sprintf("analysis %d", batch))
		default:
			return llmtest.Text("answer")
		}
	})
	agg := aggregatorFunc(func(context.Context, string, int) ([]domain.PaperRecord, error) {
		return papers, nil
	})

	p := New(Deps{Client: client, Aggregator: agg, Filter: passThroughFilter{}},
		Config{MaxPapers: 10, AnalysisBatchSize: 5}, zerolog.Nop())
	events := &Collector{}

	result, err := p.Run(context.Background(), "graphene?", events)
	require.NoError(t, err)

	var substages []string
	for _, ev := range events.Events() {
		if ev.Status == domain.EventSubstageUpdate && strings.HasPrefix(ev.Substage, "batch") {
			substages = append(substages, ev.Substage)
		}
	}
	assert.Equal(t, []string{"batch 1/2", "batch 2/2"}, substages)
	assert.Equal(t, "analysis 1\n\nanalysis 2", result.PaperAnalysis)
	assert.Len(t, result.CitationMapping, 7)
}

func TestPipeline_EmptyQueryWordFallsBackToQuestion(t *testing.T) {
	client := scriptedModel{evaluation: `{"canAnswer": false, "queryWord": "  "}`}.client()

	var gotQuery string
	var gotTarget int
	agg := aggregatorFunc(func(_ context.Context, query string, target int) ([]domain.PaperRecord, error) {
		gotQuery, gotTarget = query, target
		return nil, nil
	})

	p := New(Deps{Client: client, Aggregator: agg, Filter: passThroughFilter{}}, Config{}, zerolog.Nop())
	result, err := p.Run(context.Background(), "  effects of caffeine on sleep  ", Discard)
	require.NoError(t, err)

	assert.Equal(t, "effects of caffeine on sleep", gotQuery)
	assert.Equal(t, DefaultTargetCount, gotTarget)
	assert.Equal(t, domain.AnswerModeNoPapers, result.Mode)
}

// --- failures ---

func TestPipeline_Failures(t *testing.T) {
	t.Run("missing question", func(t *testing.T) {
		client := llmtest.New()
		p := New(Deps{Client: client}, Config{}, zerolog.Nop())
		events := &Collector{}

		_, err := p.Run(context.Background(), "   ", events)
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrMissingInput))
		assert.Empty(t, events.Events())
		assert.Empty(t, client.Calls())
	})

	t.Run("malformed evaluation json", func(t *testing.T) {
		client := scriptedModel{evaluation: "I think this needs research."}.client()
		recorder := newFakeRecorder()
		p := New(Deps{Client: client, Aggregator: newAggregator(emptySearcher()), Filter: passThroughFilter{}, Recorder: recorder},
			Config{}, zerolog.Nop())
		events := &Collector{}

		_, err := p.Run(context.Background(), "Why is the sky blue?", events)
		require.Error(t, err)

		var stageErr *domain.StageError
		require.True(t, errors.As(err, &stageErr))
		assert.Equal(t, domain.StageEvaluating, stageErr.Stage)
		assert.True(t, errors.Is(err, domain.ErrProviderResponseInvalid))

		errEvent := last(events.Events())
		assert.Equal(t, domain.EventError, errEvent.Status)
		assert.Equal(t, domain.StageEvaluating, errEvent.Stage)
		assert.NotEmpty(t, errEvent.Error)
		assert.Equal(t, 1, recorder.failed["evaluating"])
	})

	t.Run("evaluation provider error", func(t *testing.T) {
		client := llmtest.New(llmtest.Fail(&llm.APIError{Provider: "scripted", StatusCode: 500, Message: "boom"}))
		p := New(Deps{Client: client}, Config{}, zerolog.Nop())
		events := &Collector{}

		_, err := p.Run(context.Background(), "q", events)
		require.Error(t, err)

		var apiErr *llm.APIError
		assert.True(t, errors.As(err, &apiErr))
		assert.Equal(t, domain.EventError, last(events.Events()).Status)
	})

	t.Run("total source failure", func(t *testing.T) {
		client := scriptedModel{evaluation: `{"canAnswer": false, "queryWord": "q"}`}.client()
		searcher := searcherFunc(func(_ context.Context, terms []string, _ int) []papersources.SourceResult {
			return []papersources.SourceResult{{
				Source: domain.SourceTypeArXiv,
				Term:   terms[0],
				Error:  domain.NewSourceUnavailableError("arXiv", errors.New("503")),
			}}
		})
		p := New(Deps{Client: client, Aggregator: newAggregator(searcher), Filter: passThroughFilter{}}, Config{}, zerolog.Nop())
		events := &Collector{}

		_, err := p.Run(context.Background(), "q", events)
		require.Error(t, err)

		var stageErr *domain.StageError
		require.True(t, errors.As(err, &stageErr))
		assert.Equal(t, domain.StageRetrieving, stageErr.Stage)
		assert.True(t, errors.Is(err, domain.ErrSourceUnavailable))

		errEvent := last(events.Events())
		assert.Equal(t, domain.EventError, errEvent.Status)
		assert.Equal(t, domain.StageRetrieving, errEvent.Stage)
	})

	t.Run("stream error during analysis", func(t *testing.T) {
		client := llmtest.Func(func(req llm.Request) llmtest.Reply {
			switch req.System {
			case evaluateSystemPrompt:
				return llmtest.Text(`{"canAnswer": false, "queryWord": "q"}`)
			case analysisSystemPrompt:
				return llmtest.Reply{Chunks: []string{"partial"}, Err: errors.New("connection reset")}
			default:
				return llmtest.Text("unused")
			}
		})
		agg := aggregatorFunc(func(context.Context, string, int) ([]domain.PaperRecord, error) {
			return []domain.PaperRecord{researchPaper("Only paper", "Ann Lee", "2020", domain.SourceTypeCORE, 1)}, nil
		})
		archive := &fakeArchive{}
		p := New(Deps{Client: client, Aggregator: agg, Filter: passThroughFilter{}, Archive: archive}, Config{}, zerolog.Nop())
		events := &Collector{}

		_, err := p.Run(context.Background(), "q", events)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection reset")

		errEvent := last(events.Events())
		assert.Equal(t, domain.EventError, errEvent.Status)
		assert.Equal(t, domain.StageAnalyzing, errEvent.Stage)
		assert.NotContains(t, events.Stages(), domain.StageGeneratingCited)
		assert.Empty(t, archive.records)
	})

	t.Run("stream that ends on timeout", func(t *testing.T) {
		scripted := scriptedModel{evaluation: `{"canAnswer": true, "answer": "yes"}`}.client()
		client := hangingClient{Client: scripted}
		p := New(Deps{Client: client}, Config{StreamTimeout: 20 * time.Millisecond}, zerolog.Nop())
		events := &Collector{}

		_, err := p.Run(context.Background(), "q", events)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Equal(t, domain.StageGeneratingDirect, last(events.Events()).Stage)
		assert.NotContains(t, events.Statuses(), domain.EventChunkComplete)
	})
}

func TestPipeline_EmitterFailure(t *testing.T) {
	client := scriptedModel{
		evaluation: `{"canAnswer": true, "answer": "4"}`,
		direct:     []string{"one", "two", "three"},
	}.client()
	archive := &fakeArchive{}
	recorder := newFakeRecorder()
	p := New(Deps{Client: client, Archive: archive, Recorder: recorder}, Config{}, zerolog.Nop())

	var delivered []domain.Event
	broken := errors.New("write: broken pipe")
	emitter := EmitterFunc(func(_ context.Context, ev domain.Event) error {
		if ev.Status == domain.EventToken {
			return broken
		}
		delivered = append(delivered, ev)
		return nil
	})

	_, err := p.Run(context.Background(), "What is 2+2?", emitter)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrStreamTransport))
	assert.True(t, errors.Is(err, broken))

	var stageErr *domain.StageError
	assert.False(t, errors.As(err, &stageErr))

	assert.Equal(t, domain.EventStreaming, delivered[len(delivered)-1].Status, "nothing is emitted after the failure")
	for _, ev := range delivered {
		assert.NotEqual(t, domain.EventError, ev.Status)
	}
	assert.Empty(t, archive.records)
	assert.Equal(t, 1, recorder.failed["generating_direct"])
}

func TestPipeline_ArchiveFailureIsNotFatal(t *testing.T) {
	client := scriptedModel{
		evaluation: `{"canAnswer": true, "answer": "4"}`,
		direct:     []string{"4"},
	}.client()
	archive := &fakeArchive{err: errors.New("database unavailable")}
	recorder := newFakeRecorder()
	p := New(Deps{Client: client, Archive: archive, Recorder: recorder}, Config{}, zerolog.Nop())

	result, err := p.Run(context.Background(), "What is 2+2?", Discard)
	require.NoError(t, err)
	assert.Equal(t, "4", result.Answer)
	assert.Equal(t, []bool{false}, recorder.archived)
}

func TestPipeline_DirectAnswerUsesEvaluationWhenStreamIsEmpty(t *testing.T) {
	client := scriptedModel{evaluation: `{"canAnswer": true, "answer": "Paris"}`}.client()
	p := New(Deps{Client: client}, Config{}, zerolog.Nop())
	events := &Collector{}

	result, err := p.Run(context.Background(), "Capital of France?", events)
	require.NoError(t, err)
	assert.Equal(t, "Paris", result.Answer)

	// Streaming clients must see the same text as the complete event.
	assert.Equal(t, []string{"Paris"}, tokens(events.Events()))
	var chunk *domain.Event
	for _, ev := range events.Events() {
		if ev.Status == domain.EventChunkComplete {
			chunk = &ev
		}
	}
	require.NotNil(t, chunk)
	assert.Equal(t, "Paris", chunk.Content)
}

func TestCreateBatches(t *testing.T) {
	entries := make([]domain.CitationEntry, 7)

	tests := []struct {
		name    string
		entries []domain.CitationEntry
		size    int
		want    []int
	}{
		{"empty", nil, 5, nil},
		{"exact", entries[:5], 5, []int{5}},
		{"remainder", entries, 5, []int{5, 2}},
		{"single", entries[:3], 1, []int{1, 1, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, b := range createBatches(tt.entries, tt.size) {
				got = append(got, len(b))
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	p := New(Deps{}, Config{MaxPapers: 8}, zerolog.Nop())
	cfg := p.Config()

	assert.Equal(t, DefaultTargetCount, cfg.TargetCount)
	assert.Equal(t, 8, cfg.MaxPapers)
	assert.Equal(t, DefaultAnalysisBatchSize, cfg.AnalysisBatchSize)
	assert.Equal(t, DefaultCallTimeout, cfg.CallTimeout)
	assert.Equal(t, DefaultStreamTimeout, cfg.StreamTimeout)
}
