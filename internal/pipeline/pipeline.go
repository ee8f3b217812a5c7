// Package pipeline drives a research question through its stages:
// evaluating, then either a direct answer or retrieving, filtering,
// analyzing and a cited answer. Progress is reported to an Emitter as it
// happens, including every text increment produced by the model.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/research-answer-service/internal/citation"
	"github.com/helixir/research-answer-service/internal/domain"
	"github.com/helixir/research-answer-service/internal/llm"
	"github.com/helixir/research-answer-service/internal/observability"
)

// Default values for the pipeline.
const (
	DefaultTargetCount       = 20
	DefaultMaxPapers         = 5
	DefaultAnalysisBatchSize = 5
	DefaultCallTimeout       = 30 * time.Second
	DefaultStreamTimeout     = 3 * time.Minute

	evaluateMaxTokens = 1024
	analysisMaxTokens = 4096
	answerMaxTokens   = 4096
)

// Aggregator returns ranked papers for a search query.
type Aggregator interface {
	Aggregate(ctx context.Context, query string, targetCount int) ([]domain.PaperRecord, error)
}

// RelevanceFilter caps a paper list to the most relevant entries.
type RelevanceFilter interface {
	Filter(ctx context.Context, question string, papers []domain.PaperRecord, maxPapers int) []domain.PaperRecord
}

// AnswerArchive stores completed answers.
type AnswerArchive interface {
	Save(ctx context.Context, record *domain.AnswerRecord) error
}

// Recorder receives pipeline metrics. It is satisfied by observability.Metrics.
type Recorder interface {
	RecordQuestionStarted()
	RecordQuestionCompleted(mode string, durationSeconds float64)
	RecordQuestionFailed(stage string, durationSeconds float64)
	RecordStageDuration(stage string, durationSeconds float64)
	RecordAnswerArchived(success bool)
}

// Config holds the pipeline settings.
type Config struct {
	// TargetCount is the number of papers requested from the aggregator.
	TargetCount int

	// MaxPapers caps the papers kept by the relevance filter.
	MaxPapers int

	// AnalysisBatchSize is the number of papers analyzed per model call.
	AnalysisBatchSize int

	// CallTimeout bounds each non-streaming model call.
	CallTimeout time.Duration

	// StreamTimeout bounds each streaming model call.
	StreamTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.TargetCount <= 0 {
		c.TargetCount = DefaultTargetCount
	}
	if c.MaxPapers <= 0 {
		c.MaxPapers = DefaultMaxPapers
	}
	if c.AnalysisBatchSize <= 0 {
		c.AnalysisBatchSize = DefaultAnalysisBatchSize
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.StreamTimeout <= 0 {
		c.StreamTimeout = DefaultStreamTimeout
	}
}

// Deps are the collaborators of a Pipeline. Archive and Recorder are optional.
type Deps struct {
	Client     llm.Client
	Aggregator Aggregator
	Filter     RelevanceFilter
	Archive    AnswerArchive
	Recorder   Recorder
}

// Pipeline answers research questions. It holds no per-request state and
// is safe for concurrent use.
type Pipeline struct {
	client     llm.Client
	aggregator Aggregator
	filter     RelevanceFilter
	archive    AnswerArchive
	recorder   Recorder
	cfg        Config
	logger     zerolog.Logger
}

// New creates a Pipeline.
func New(deps Deps, cfg Config, logger zerolog.Logger) *Pipeline {
	cfg.applyDefaults()

	recorder := deps.Recorder
	if recorder == nil {
		recorder = noopRecorder{}
	}

	return &Pipeline{
		client:     deps.Client,
		aggregator: deps.Aggregator,
		filter:     deps.Filter,
		archive:    deps.Archive,
		recorder:   recorder,
		cfg:        cfg,
		logger:     logger.With().Str("component", "pipeline").Logger(),
	}
}

// Config returns the effective configuration.
func (p *Pipeline) Config() Config {
	return p.cfg
}

// Run answers question, reporting progress to emitter.
//
// On a stage failure an error event is emitted and the returned error is a
// *domain.StageError. If the emitter fails the run stops at once and the
// error matches domain.ErrStreamTransport; no further events are emitted.
func (p *Pipeline) Run(ctx context.Context, question string, emitter Emitter) (*domain.Result, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, domain.NewMissingInputError("question")
	}

	r := &run{
		p:       p,
		state:   domain.NewPipelineState(question),
		emitter: emitter,
		logger:  observability.LoggerFromContext(ctx, p.logger),
	}

	p.recorder.RecordQuestionStarted()
	r.logger.Info().Str("question", question).Msg("question received")

	result, err := r.execute(ctx)
	elapsed := time.Since(r.state.StartedAt)

	if err != nil {
		return nil, r.fail(ctx, err, elapsed)
	}

	p.recorder.RecordQuestionCompleted(string(result.Mode), elapsed.Seconds())
	r.logger.Info().
		Str("mode", string(result.Mode)).
		Int("citations", len(result.Citations)).
		Dur("duration", elapsed).
		Msg("question answered")

	p.archiveResult(ctx, r, result, elapsed)

	return result, nil
}

// fail reports err to the caller and converts it into the error Run returns.
func (r *run) fail(ctx context.Context, err error, elapsed time.Duration) error {
	stage := r.state.Stage
	r.state.Advance(domain.StageFailed, "")
	r.p.recorder.RecordQuestionFailed(string(stage), elapsed.Seconds())

	if errors.Is(err, domain.ErrStreamTransport) {
		r.logger.Warn().Err(err).Str("stage", string(stage)).Msg("caller disconnected")
		return err
	}

	r.logger.Error().Err(err).Str("stage", string(stage)).Msg("question failed")

	ev := domain.NewEvent(domain.EventError, stage)
	ev.Error = err.Error()
	ev.Message = fmt.Sprintf("failed while %s", strings.ReplaceAll(string(stage), "_", " "))
	if emitErr := r.emit(ctx, ev); emitErr != nil {
		return emitErr
	}
	return domain.NewStageError(stage, err)
}

func (p *Pipeline) archiveResult(ctx context.Context, r *run, result *domain.Result, elapsed time.Duration) {
	if p.archive == nil {
		return
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CallTimeout)
	defer cancel()

	record := domain.NewAnswerRecord(r.state.Question, result, elapsed)
	if err := p.archive.Save(saveCtx, record); err != nil {
		p.recorder.RecordAnswerArchived(false)
		r.logger.Warn().Err(err).Msg("failed to archive answer")
		return
	}
	p.recorder.RecordAnswerArchived(true)
	r.logger.Debug().Str("answer_id", record.ID.String()).Msg("answer archived")
}

// run is the state of one question.
type run struct {
	p          *Pipeline
	state      *domain.PipelineState
	emitter    Emitter
	logger     zerolog.Logger
	timed      domain.Stage
	stageStart time.Time
}

func (r *run) execute(ctx context.Context) (*domain.Result, error) {
	if err := r.emit(ctx, domain.NewEvent(domain.EventConnected, "")); err != nil {
		return nil, err
	}

	decision, err := r.evaluate(ctx)
	if err != nil {
		return nil, err
	}

	var result *domain.Result
	if decision.CanAnswer {
		result, err = r.answerDirect(ctx, decision.Answer)
	} else {
		result, err = r.answerFromPapers(ctx, decision.queryWord(r.state.Question))
	}
	if err != nil {
		return nil, err
	}

	r.finishStage()
	r.state.Advance(domain.StageDone, "")
	result.ProcessSteps = append([]string{}, r.state.ProcessSteps...)

	ev := domain.NewEvent(domain.EventComplete, domain.StageDone)
	ev.Result = result
	if err := r.emit(ctx, ev); err != nil {
		return nil, err
	}
	return result, nil
}

// evaluation is the decoded scope decision.
type evaluation struct {
	CanAnswer bool   `json:"canAnswer"`
	Answer    string `json:"answer"`
	QueryWord string `json:"queryWord"`
}

func (e evaluation) queryWord(question string) string {
	if q := strings.TrimSpace(e.QueryWord); q != "" {
		return q
	}
	return question
}

func (r *run) evaluate(ctx context.Context) (evaluation, error) {
	if err := r.enter(ctx, domain.StageEvaluating); err != nil {
		return evaluation{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, r.p.cfg.CallTimeout)
	defer cancel()

	resp, err := r.p.client.Complete(callCtx, llm.Request{
		System:      evaluateSystemPrompt,
		Prompt:      r.state.Question,
		Tier:        llm.TierCheap,
		MaxTokens:   evaluateMaxTokens,
		Temperature: llm.Float(0),
	})
	if err != nil {
		return evaluation{}, fmt.Errorf("evaluating question: %w", err)
	}

	var decision evaluation
	if err := llm.ExtractJSONObject(resp.Text, &decision); err != nil {
		return evaluation{}, domain.NewProviderResponseError("evaluate", resp.Text, err)
	}

	r.logger.Debug().
		Bool("can_answer", decision.CanAnswer).
		Str("query_word", decision.QueryWord).
		Msg("question evaluated")
	return decision, nil
}

func (r *run) answerDirect(ctx context.Context, hint string) (*domain.Result, error) {
	if err := r.enter(ctx, domain.StageGeneratingDirect); err != nil {
		return nil, err
	}

	answer, err := r.streamTextOr(ctx, llm.Request{
		System:    directSystemPrompt,
		Prompt:    r.state.Question,
		Tier:      llm.TierPremium,
		MaxTokens: answerMaxTokens,
	}, hint)
	if err != nil {
		return nil, err
	}
	r.state.AccumulatedAnswer = answer

	return &domain.Result{
		Answer:    answer,
		Citations: []domain.CitationEntry{},
		Note:      directAnswerNote,
		Mode:      domain.AnswerModeDirect,
	}, nil
}

func (r *run) answerFromPapers(ctx context.Context, queryWord string) (*domain.Result, error) {
	r.state.QueryWord = queryWord

	papers, err := r.retrieve(ctx, queryWord)
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return &domain.Result{
			Answer:    fmt.Sprintf(noPapersTemplate, queryWord),
			Citations: []domain.CitationEntry{},
			QueryWord: queryWord,
			Mode:      domain.AnswerModeNoPapers,
		}, nil
	}

	selected, err := r.selectPapers(ctx, papers)
	if err != nil {
		return nil, err
	}

	entries := citation.BuildKeys(selected)
	r.state.Citations = entries

	analysis, err := r.analyze(ctx, entries)
	if err != nil {
		return nil, err
	}

	answer, err := r.generateCited(ctx, analysis, entries)
	if err != nil {
		return nil, err
	}

	return &domain.Result{
		Answer:          answer,
		Citations:       entries,
		QueryWord:       queryWord,
		PaperAnalysis:   analysis,
		CitationMapping: citation.Mapping(entries),
		Mode:            domain.AnswerModeCited,
	}, nil
}

func (r *run) retrieve(ctx context.Context, queryWord string) ([]domain.PaperRecord, error) {
	if err := r.enter(ctx, domain.StageRetrieving); err != nil {
		return nil, err
	}

	papers, err := r.p.aggregator.Aggregate(ctx, queryWord, r.p.cfg.TargetCount)
	if err != nil {
		return nil, fmt.Errorf("retrieving papers: %w", err)
	}

	count := len(papers)
	ev := r.event(domain.EventPapersFinding)
	ev.PaperCount = &count
	ev.Message = fmt.Sprintf("found %d papers", count)
	if err := r.emit(ctx, ev); err != nil {
		return nil, err
	}
	return papers, nil
}

func (r *run) selectPapers(ctx context.Context, papers []domain.PaperRecord) ([]domain.PaperRecord, error) {
	if err := r.enter(ctx, domain.StageFiltering); err != nil {
		return nil, err
	}

	selected := r.p.filter.Filter(ctx, r.state.Question, papers, r.p.cfg.MaxPapers)

	count := len(selected)
	ev := r.event(domain.EventSubstageUpdate)
	ev.Substage = "selected"
	ev.PaperCount = &count
	ev.Message = fmt.Sprintf("selected %d of %d papers", count, len(papers))
	if err := r.emit(ctx, ev); err != nil {
		return nil, err
	}
	return selected, nil
}

func (r *run) analyze(ctx context.Context, entries []domain.CitationEntry) (string, error) {
	if err := r.enter(ctx, domain.StageAnalyzing); err != nil {
		return "", err
	}

	batches := createBatches(entries, r.p.cfg.AnalysisBatchSize)
	outputs := make([]string, 0, len(batches))

	for i, batch := range batches {
		ev := r.event(domain.EventSubstageUpdate)
		ev.Substage = fmt.Sprintf("batch %d/%d", i+1, len(batches))
		ev.Message = fmt.Sprintf("analyzing %d papers", len(batch))
		if err := r.emit(ctx, ev); err != nil {
			return "", err
		}

		text, err := r.streamText(ctx, llm.Request{
			System:    analysisSystemPrompt,
			Prompt:    buildAnalysisPrompt(r.state.Question, citation.RenderBlocks(batch)),
			Tier:      llm.TierCheap,
			MaxTokens: analysisMaxTokens,
		})
		if err != nil {
			return "", fmt.Errorf("analyzing batch %d: %w", i+1, err)
		}
		outputs = append(outputs, text)
	}

	r.state.AccumulatedAnalysis = strings.Join(outputs, "\n\n")
	return r.state.AccumulatedAnalysis, nil
}

func (r *run) generateCited(ctx context.Context, analysis string, entries []domain.CitationEntry) (string, error) {
	if err := r.enter(ctx, domain.StageGeneratingCited); err != nil {
		return "", err
	}

	answer, err := r.streamText(ctx, llm.Request{
		System:    answerSystemPrompt,
		Prompt:    buildAnswerPrompt(r.state.Question, analysis, entries),
		Tier:      llm.TierPremium,
		MaxTokens: answerMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generating answer: %w", err)
	}
	r.state.AccumulatedAnswer = answer
	return answer, nil
}

// streamText streams req and forwards every increment as a token event.
// It emits streaming first and chunk_complete with the full text last.
func (r *run) streamText(ctx context.Context, req llm.Request) (string, error) {
	return r.streamTextOr(ctx, req, "")
}

// streamTextOr is streamText with a fallback. When the stream yields only
// whitespace and fallback is not empty, fallback is emitted as a single token
// and becomes the text.
func (r *run) streamTextOr(ctx context.Context, req llm.Request, fallback string) (string, error) {
	streamCtx, cancel := context.WithTimeout(ctx, r.p.cfg.StreamTimeout)
	defer cancel()

	chunks, err := r.p.client.Stream(streamCtx, req)
	if err != nil {
		return "", fmt.Errorf("starting stream: %w", err)
	}

	if err := r.emit(ctx, r.event(domain.EventStreaming)); err != nil {
		return "", err
	}

	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return "", fmt.Errorf("streaming: %w", chunk.Err)
		}
		if chunk.Text == "" {
			continue
		}
		sb.WriteString(chunk.Text)

		ev := r.event(domain.EventToken)
		ev.Token = chunk.Text
		if err := r.emit(ctx, ev); err != nil {
			return "", err
		}
	}

	// A provider closes the channel without an error chunk when its context ends.
	if err := streamCtx.Err(); err != nil {
		return "", fmt.Errorf("streaming: %w", err)
	}

	text := sb.String()
	if strings.TrimSpace(text) == "" && fallback != "" {
		text = fallback
		ev := r.event(domain.EventToken)
		ev.Token = fallback
		if err := r.emit(ctx, ev); err != nil {
			return "", err
		}
	}

	ev := r.event(domain.EventChunkComplete)
	ev.Content = text
	if err := r.emit(ctx, ev); err != nil {
		return "", err
	}
	return text, nil
}

// enter moves to stage, records the step label and emits a stage_update.
func (r *run) enter(ctx context.Context, stage domain.Stage) error {
	r.finishStage()
	r.timed = stage
	r.state.Advance(stage, stageLabels[stage])
	stageLogger := observability.WithStageContext(r.logger, string(stage))
	stageLogger.Debug().Msg("stage entered")

	ev := r.event(domain.EventStageUpdate)
	ev.Message = stageLabels[stage]
	return r.emit(ctx, ev)
}

// finishStage records the duration of the current stage.
func (r *run) finishStage() {
	now := time.Now()
	if r.timed != "" {
		r.p.recorder.RecordStageDuration(string(r.timed), now.Sub(r.stageStart).Seconds())
	}
	r.timed = ""
	r.stageStart = now
}

func (r *run) event(status domain.EventStatus) domain.Event {
	return domain.NewEvent(status, r.state.Stage)
}

func (r *run) emit(ctx context.Context, ev domain.Event) error {
	if err := r.emitter.Emit(ctx, ev); err != nil {
		if errors.Is(err, domain.ErrStreamTransport) {
			return err
		}
		return domain.NewStreamTransportError(err)
	}
	return nil
}

// createBatches splits entries into batches of the specified size.
func createBatches(entries []domain.CitationEntry, size int) [][]domain.CitationEntry {
	if len(entries) == 0 {
		return nil
	}

	var batches [][]domain.CitationEntry
	for i := 0; i < len(entries); i += size {
		end := i + size
		if end > len(entries) {
			end = len(entries)
		}
		batches = append(batches, entries[i:end])
	}
	return batches
}

type noopRecorder struct{}

func (noopRecorder) RecordQuestionStarted() {}
func (noopRecorder) RecordQuestionCompleted(string, float64) {}
func (noopRecorder) RecordQuestionFailed(string, float64) {}
func (noopRecorder) RecordStageDuration(string, float64) {}
func (noopRecorder) RecordAnswerArchived(bool) {}
