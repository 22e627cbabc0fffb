package textkg

import (
	"log/slog"

	"github.com/randalmurphal/textkg/pkg/textkg/config"
	"github.com/randalmurphal/textkg/pkg/textkg/observability"
	"github.com/randalmurphal/textkg/pkg/textkg/schedule"
	"github.com/randalmurphal/textkg/pkg/textkg/store"
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithConfig replaces the default pipeline configuration.
func WithConfig(cfg config.Pipeline) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// WithLogger enables structured logging. A nil logger disables it.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

// WithMetrics enables metrics recording.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(p *Pipeline) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithTracing enables trace spans.
func WithTracing(spans observability.SpanManager) Option {
	return func(p *Pipeline) {
		if spans != nil {
			p.spans = spans
		}
	}
}

// WithRunID sets the run identifier. The default is a random UUID.
func WithRunID(runID string) Option {
	return func(p *Pipeline) {
		if runID != "" {
			p.runID = runID
		}
	}
}

// WithStore enables result persistence. Documents already stored for
// the run are skipped and their stored results replayed.
func WithStore(s store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

// WithChunker replaces the default file-reading chunker.
func WithChunker(c schedule.Chunker) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.chunker = c
		}
	}
}

// WithPromptBuilder replaces the default extraction prompt.
func WithPromptBuilder(b PromptBuilder) Option {
	return func(p *Pipeline) {
		if b != nil {
			p.prompt = b
		}
	}
}
