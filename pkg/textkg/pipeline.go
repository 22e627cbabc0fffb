package textkg

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/textkg/pkg/textkg/config"
	tkerrors "github.com/randalmurphal/textkg/pkg/textkg/errors"
	"github.com/randalmurphal/textkg/pkg/textkg/graph"
	"github.com/randalmurphal/textkg/pkg/textkg/llm"
	"github.com/randalmurphal/textkg/pkg/textkg/observability"
	"github.com/randalmurphal/textkg/pkg/textkg/recovery"
	"github.com/randalmurphal/textkg/pkg/textkg/schedule"
	"github.com/randalmurphal/textkg/pkg/textkg/store"
)

// Pipeline runs end-to-end knowledge graph extraction: chunking,
// scheduled generation calls, payload recovery, merging, and graph
// validation.
type Pipeline struct {
	client  llm.Client
	cfg     config.Pipeline
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	runID   string
	store   store.Store
	chunker schedule.Chunker
	prompt  PromptBuilder

	retry tkerrors.RetryConfig
	sched *schedule.Scheduler[ChunkOutcome]

	chunksProcessed    atomic.Int64
	chunksFailed       atomic.Int64
	documentsProcessed atomic.Int64
	documentsFailed    atomic.Int64
	tokensUsed         atomic.Int64
}

// ChunkMeta carries diagnostics for one chunk extraction.
type ChunkMeta struct {
	// Strategy is the recovery rung that produced the payload.
	Strategy recovery.Strategy

	// MissingFields lists expected top-level payload fields the model
	// left out.
	MissingFields []string

	// Attempts is how many generation calls were made.
	Attempts int

	// Usage is the token consumption of the final call.
	Usage llm.TokenUsage

	// Duration is the wall time for the chunk including retries.
	Duration time.Duration
}

// ChunkOutcome is the result of one chunk extraction.
type ChunkOutcome struct {
	// Payload holds the extracted records, tagged with the source
	// document. Never nil on success.
	Payload *graph.Payload

	// Meta carries extraction diagnostics.
	Meta ChunkMeta
}

// DocumentOutput is the per-document result of a pipeline run.
type DocumentOutput struct {
	// Doc is the processed document.
	Doc schedule.Document

	// Chunks holds every chunk outcome in index order. Empty for
	// documents replayed from the store.
	Chunks []schedule.ChunkResult[ChunkOutcome]

	// Graph is the merged, validated graph. Nil when Err is set.
	Graph *graph.Payload

	// Report is the validation report for Graph.
	Report *graph.Report

	// Err is set when the document failed as a whole.
	Err error

	// Skipped is true when the result was replayed from the store
	// instead of being re-extracted.
	Skipped bool
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	ChunksProcessed    int64
	ChunksFailed       int64
	DocumentsProcessed int64
	DocumentsFailed    int64
	TokensUsed         int64
}

// New creates a Pipeline around a generation client.
func New(client llm.Client, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		client:  client,
		cfg:     config.DefaultPipeline(),
		metrics: observability.NoopMetrics{},
		spans:   observability.NoopSpanManager{},
		prompt:  DefaultPromptBuilder,
		runID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	if p.chunker == nil {
		p.chunker = FileChunker(p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	}
	p.retry = p.cfg.RetryConfig()

	var schedOpts []schedule.Option
	if p.cfg.BufferSize > 0 {
		schedOpts = append(schedOpts, schedule.WithBufferSize(p.cfg.BufferSize))
	}
	p.sched = schedule.New[ChunkOutcome](p.cfg.Workers, schedOpts...)

	return p, nil
}

// RunID returns the run identifier.
func (p *Pipeline) RunID() string { return p.runID }

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		ChunksProcessed:    p.chunksProcessed.Load(),
		ChunksFailed:       p.chunksFailed.Load(),
		DocumentsProcessed: p.documentsProcessed.Load(),
		DocumentsFailed:    p.documentsFailed.Load(),
		TokensUsed:         p.tokensUsed.Load(),
	}
}

// ProcessChunk extracts a graph payload from one chunk: prompt, retried
// generation call, payload recovery, source tagging.
func (p *Pipeline) ProcessChunk(ctx context.Context, item schedule.ChunkItem) (ChunkOutcome, error) {
	logger := observability.EnrichLogger(p.logger, p.runID, item.Doc.Name, item.Index)
	ctx, span := p.spans.StartChunkSpan(ctx, item.Doc.Name, item.Index)
	start := time.Now()

	outcome, err := p.extractChunk(ctx, logger, item, start)
	elapsed := time.Since(start)
	p.metrics.RecordChunk(ctx, item.Doc.Name, elapsed, err)
	p.spans.EndSpanWithError(span, err)

	if err != nil {
		p.chunksFailed.Add(1)
		observability.LogChunkError(logger, item.Doc.Name, item.Index, err)
		return ChunkOutcome{}, err
	}

	p.chunksProcessed.Add(1)
	p.tokensUsed.Add(int64(outcome.Meta.Usage.TotalTokens))
	observability.LogChunkComplete(logger, item.Doc.Name, item.Index, float64(elapsed.Milliseconds()))
	return outcome, nil
}

func (p *Pipeline) extractChunk(ctx context.Context, logger *slog.Logger, item schedule.ChunkItem, start time.Time) (ChunkOutcome, error) {
	system, user := p.prompt(item.Doc, item.Index, item.Text)
	req := llm.CompletionRequest{
		SystemPrompt: system,
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
		Model:        p.cfg.Model,
		MaxTokens:    p.cfg.MaxTokens,
		Temperature:  &p.cfg.Temperature,
		ForceJSON:    p.cfg.ForceJSON,
	}

	res := tkerrors.WithRetryContext(ctx, p.retry, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return p.client.Complete(ctx, req)
	})
	if res.Err != nil {
		return ChunkOutcome{}, res.Err
	}

	rec, err := recovery.Recover(res.Value.Content)
	if err != nil {
		return ChunkOutcome{}, err
	}
	p.metrics.RecordRecovery(ctx, string(rec.Strategy))

	missing := rec.MissingFields(graph.ExpectedFields)
	observability.LogRecovery(logger, item.Doc.Name, item.Index, string(rec.Strategy), missing)

	payload := &graph.Payload{}
	if _, isObject := rec.Object(); isObject {
		if err := json.Unmarshal(rec.Raw, payload); err != nil {
			// Shape mismatch on a known-parseable object: keep what
			// decoded, record the rest as missing.
			if logger != nil {
				logger.Warn("payload shape mismatch",
					slog.String("document", item.Doc.Name),
					slog.Int("chunk", item.Index),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	payload.TagSource(item.Doc.Name)

	return ChunkOutcome{
		Payload: payload,
		Meta: ChunkMeta{
			Strategy:      rec.Strategy,
			MissingFields: missing,
			Attempts:      res.Attempts,
			Usage:         res.Value.Usage,
			Duration:      time.Since(start),
		},
	}, nil
}

// ProcessDocuments runs the full pipeline over the documents and
// streams per-document outputs. Each document is emitted as soon as it
// completes. The channel is always closed.
func (p *Pipeline) ProcessDocuments(ctx context.Context, docs []schedule.Document) <-chan DocumentOutput {
	out := make(chan DocumentOutput)
	go func() {
		defer close(out)

		ctx, runSpan := p.spans.StartRunSpan(ctx, p.runID, len(docs))
		defer p.spans.EndSpanWithError(runSpan, nil)

		observability.LogRunStart(p.logger, p.runID, len(docs), p.cfg.Workers)
		runDone := observability.TimedOperation()

		var emitted, failed int
		pending := docs
		if p.store != nil {
			pending = pending[:0:0]
			for _, doc := range docs {
				replayed, ok := p.replay(doc)
				if !ok {
					pending = append(pending, doc)
					continue
				}
				emitted++
				select {
				case out <- replayed:
				case <-ctx.Done():
					return
				}
			}
		}

		for res := range p.sched.Stream(ctx, pending, p.chunker, p.ProcessChunk) {
			output := p.assembleDocument(ctx, res)
			emitted++
			if output.Err != nil {
				failed++
			}
			select {
			case out <- output:
			case <-ctx.Done():
				return
			}
		}

		observability.LogRunComplete(p.logger, p.runID, runDone(), emitted, failed)
	}()
	return out
}

// replay loads a stored result for the document, if one exists.
func (p *Pipeline) replay(doc schedule.Document) (DocumentOutput, bool) {
	has, err := p.store.Has(p.runID, doc.Name)
	if err != nil || !has {
		return DocumentOutput{}, false
	}
	res, err := p.store.Load(p.runID, doc.Name)
	if err != nil {
		return DocumentOutput{}, false
	}

	payload := &graph.Payload{}
	if err := json.Unmarshal(res.Graph, payload); err != nil {
		return DocumentOutput{}, false
	}
	report := decodeReport(res.Report)

	if p.logger != nil {
		p.logger.Info("document replayed from store",
			slog.String("run_id", p.runID),
			slog.String("document", doc.Name),
		)
	}
	return DocumentOutput{Doc: doc, Graph: payload, Report: report, Skipped: true}, true
}

// assembleDocument merges and validates a completed document's chunk
// payloads and persists the result.
func (p *Pipeline) assembleDocument(ctx context.Context, res schedule.DocumentResult[ChunkOutcome]) DocumentOutput {
	name := res.Doc.Name

	if res.Err != nil {
		p.documentsFailed.Add(1)
		p.metrics.RecordDocument(ctx, false, 0)
		observability.LogDocumentError(p.logger, name, res.Err)
		return DocumentOutput{Doc: res.Doc, Chunks: res.Chunks, Err: res.Err}
	}

	var payloads []*graph.Payload
	var failedChunks int
	var elapsed time.Duration
	for _, chunk := range res.Chunks {
		if chunk.Err != nil {
			failedChunks++
			continue
		}
		elapsed += chunk.Value.Meta.Duration
		if chunk.Value.Payload != nil {
			payloads = append(payloads, chunk.Value.Payload)
		}
	}

	validated, report := graph.Validate(graph.Merge(payloads...))

	p.documentsProcessed.Add(1)
	p.metrics.RecordDocument(ctx, true, elapsed)
	p.metrics.RecordValidation(ctx, len(report.ErrorsDeleted), len(report.WarningsModified))
	observability.LogValidationReport(p.logger, name,
		len(report.ErrorsDeleted), len(report.WarningsModified), len(report.WarningsUnmodified), report.ErrorRate)
	observability.LogDocumentComplete(p.logger, name, len(res.Chunks), failedChunks, float64(elapsed.Milliseconds()))

	p.persist(res.Doc, validated, report)

	return DocumentOutput{
		Doc:    res.Doc,
		Chunks: res.Chunks,
		Graph:  validated,
		Report: report,
	}
}

// persist saves the validated graph and report. Persistence failures
// are logged, not fatal; the caller still gets the in-memory result.
func (p *Pipeline) persist(doc schedule.Document, payload *graph.Payload, report *graph.Report) {
	if p.store == nil {
		return
	}

	graphBytes, err := json.Marshal(payload)
	if err != nil {
		p.logStoreError(doc.Name, "marshal graph", err)
		return
	}
	reportBytes, err := report.Export()
	if err != nil {
		p.logStoreError(doc.Name, "export report", err)
		return
	}

	if err := p.store.Save(p.runID, doc.Name, store.Result{
		Document: doc.Name,
		Graph:    graphBytes,
		Report:   reportBytes,
	}); err != nil {
		p.logStoreError(doc.Name, "save result", err)
	}
}

func (p *Pipeline) logStoreError(document, op string, err error) {
	if p.logger == nil {
		return
	}
	p.logger.Warn("result persistence failed",
		slog.String("run_id", p.runID),
		slog.String("document", document),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// decodeReport best-effort decodes a stored report export. A stored
// report that no longer decodes yields nil rather than an error; the
// graph itself is the primary artifact.
func decodeReport(data []byte) *graph.Report {
	var doc struct {
		Details *graph.Report `json:"details"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil
	}
	return doc.Details
}
