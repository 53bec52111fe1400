package redact

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/halcyonhealth/phiredact/internal/lexicon"
	"github.com/halcyonhealth/phiredact/internal/observe"
)

// Metrics carries per-invocation timing and count data. Durations cover one
// detection layer each; counts are spans accepted per layer. LLMEnabled is
// false when the extraction layer was disabled, unavailable, or timed out
// and the invocation degraded to rules-only output.
type Metrics struct {
	RuleDuration       time.Duration
	DictionaryDuration time.Duration
	ModelDuration      time.Duration
	TotalDuration      time.Duration

	RuleCount       int
	DictionaryCount int
	ModelCount      int

	HallucinationsBlocked int
	LLMEnabled            bool
}

// Result is the output of one pipeline invocation. Immutable once returned;
// the caller consumes it for display and audit counts.
type Result struct {
	// Original is the untouched input text.
	Original string

	// Output is the redacted text: [LABEL] tags in tag mode, {{LABEL_n}}
	// placeholders in reversible mode.
	Output string

	// Entities lists every accepted span. In reversible mode all offsets
	// reference the original text; in tag mode each span's offsets reference
	// the working text at the start of the pass that found it.
	Entities []Span

	// Mapping is the restoration table. Nil in tag mode. It must never leave
	// the device.
	Mapping Mapping

	// Metrics holds per-layer timing and count data for this invocation.
	Metrics Metrics
}

// PipelineOption is a functional option for configuring a [Pipeline].
type PipelineOption func(*Pipeline)

// WithExtractor attaches the entity extraction layer. When nil (the
// default), the pipeline runs rules and dictionary only and reports
// LLMEnabled = false.
func WithExtractor(e Extractor) PipelineOption {
	return func(p *Pipeline) {
		p.extractor = e
	}
}

// WithObserveMetrics attaches an OTel metrics sink. When nil, only the
// per-invocation [Metrics] struct is produced.
func WithObserveMetrics(m *observe.Metrics) PipelineOption {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// Pipeline orchestrates the three detection layers. It is stateless across
// invocations (each call owns its working text and span list) so a single
// Pipeline may serve concurrent invocations; the lexicon store is the only
// shared resource and is read-only.
type Pipeline struct {
	rules     *RuleDetector
	dict      *DictionaryDetector
	lex       *lexicon.Store
	extractor Extractor
	metrics   *observe.Metrics
	logger    *slog.Logger
}

// NewPipeline constructs a Pipeline over the shared lexicon store. Pattern
// compilation failure is fatal: a malformed pattern table is a programming
// error, not a runtime condition.
func NewPipeline(lex *lexicon.Store, opts ...PipelineOption) (*Pipeline, error) {
	rules, err := NewRuleDetector()
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		rules:  rules,
		dict:   NewDictionaryDetector(lex),
		lex:    lex,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// RedactTags runs tag mode: the three layers execute sequentially over the
// same mutating working text, each layer reading the previous layer's
// output, so later layers never see already-redacted spans as candidates.
// Matched spans are replaced in place with [LABEL] markers; the result is
// irreversible.
//
// Extraction failures degrade to rules-only output and are reported through
// Metrics.LLMEnabled, never as an error.
func (p *Pipeline) RedactTags(ctx context.Context, text string) *Result {
	start := time.Now()
	res := &Result{Original: text}

	// Layer 1: rules.
	t := time.Now()
	working, ruleSpans := p.rules.DetectAndTag(text)
	res.Metrics.RuleDuration = time.Since(t)
	res.Metrics.RuleCount = len(ruleSpans)
	p.recordLayer(ctx, "rules", res.Metrics.RuleDuration, ruleSpans)

	// Layer 2: dictionary.
	t = time.Now()
	working, dictSpans := p.dict.DetectAndTag(working)
	res.Metrics.DictionaryDuration = time.Since(t)
	res.Metrics.DictionaryCount = len(dictSpans)
	p.recordLayer(ctx, "dictionary", res.Metrics.DictionaryDuration, dictSpans)

	// Layer 3: model extraction over the working text, then tag accepted
	// spans. Overlapping model spans are collapsed before tagging so their
	// edits never collide.
	t = time.Now()
	modelSpans, blocked, llmEnabled := p.extract(ctx, working)
	modelSpans = resolveOverlaps(modelSpans)
	if len(modelSpans) > 0 {
		var script editScript
		for _, s := range modelSpans {
			script.add(s.Start, s.End, s.Label.Tag())
		}
		working = script.apply(working)
	}
	res.Metrics.ModelDuration = time.Since(t)
	res.Metrics.ModelCount = len(modelSpans)
	res.Metrics.HallucinationsBlocked = blocked
	res.Metrics.LLMEnabled = llmEnabled
	p.recordLayer(ctx, "model", res.Metrics.ModelDuration, modelSpans)

	res.Output = working
	res.Entities = concatSpans(ruleSpans, dictSpans, modelSpans)
	res.Metrics.TotalDuration = time.Since(start)
	p.recordInvocation(ctx, "tag", res)
	return res
}

// RedactReversible runs reversible mode: all three layers collect spans over
// the untouched original text (the model sees full context because the
// downstream consumer needs exact original substrings), overlaps are
// resolved by layer trust, and accepted spans are substituted with numbered
// placeholders. The returned Mapping restores the original values.
func (p *Pipeline) RedactReversible(ctx context.Context, text string) *Result {
	start := time.Now()
	res := &Result{Original: text}

	t := time.Now()
	ruleSpans := p.rules.Detect(text)
	res.Metrics.RuleDuration = time.Since(t)
	res.Metrics.RuleCount = len(ruleSpans)
	p.recordLayer(ctx, "rules", res.Metrics.RuleDuration, ruleSpans)

	t = time.Now()
	dictSpans := p.dict.Detect(text)
	res.Metrics.DictionaryDuration = time.Since(t)
	res.Metrics.DictionaryCount = len(dictSpans)
	p.recordLayer(ctx, "dictionary", res.Metrics.DictionaryDuration, dictSpans)

	t = time.Now()
	modelSpans, blocked, llmEnabled := p.extract(ctx, text)
	res.Metrics.ModelDuration = time.Since(t)
	res.Metrics.ModelCount = len(modelSpans)
	res.Metrics.HallucinationsBlocked = blocked
	res.Metrics.LLMEnabled = llmEnabled
	p.recordLayer(ctx, "model", res.Metrics.ModelDuration, modelSpans)

	merged := resolveOverlaps(concatSpans(ruleSpans, dictSpans, modelSpans))
	res.Entities = merged
	res.Output, res.Mapping = Placeholders(merged, text)

	res.Metrics.TotalDuration = time.Since(start)
	p.recordInvocation(ctx, "reversible", res)
	return res
}

// extract runs the model layer and validates every candidate against text.
// Any extraction failure is absorbed: PERSON/ORG detection is best-effort
// and must never block deterministic output.
func (p *Pipeline) extract(ctx context.Context, text string) (spans []Span, blocked int, llmEnabled bool) {
	if p.extractor == nil {
		return nil, 0, false
	}
	candidates, err := p.extractor.Extract(ctx, text)
	if err != nil {
		p.logger.Warn("entity extraction unavailable, continuing rules-only", "error", err)
		return nil, 0, false
	}
	spans, blocked = ValidateCandidates(candidates, text, p.lex)
	if blocked > 0 {
		p.logger.Info("blocked hallucinated entities", "count", blocked)
	}
	return spans, blocked, true
}

// resolveOverlaps merges spans from all layers: sorted by ascending start
// offset, with ties broken by the longer span (more context), then by lower
// layer (higher trust). A span overlapping an already-accepted span is
// dropped.
func resolveOverlaps(spans []Span) []Span {
	if len(spans) <= 1 {
		return spans
	}
	ordered := make([]Span, len(spans))
	copy(ordered, spans)
	sort.Slice(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Start != b.Start {
			return a.Start < b.Start
		}
		if al, bl := a.End-a.Start, b.End-b.Start; al != bl {
			return al > bl
		}
		return a.Layer < b.Layer
	})

	accepted := ordered[:0]
	maxEnd := -1
	for _, s := range ordered {
		if s.Start < maxEnd {
			continue
		}
		accepted = append(accepted, s)
		if s.End > maxEnd {
			maxEnd = s.End
		}
	}
	return accepted
}

func concatSpans(groups ...[]Span) []Span {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]Span, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func (p *Pipeline) recordLayer(ctx context.Context, layer string, d time.Duration, spans []Span) {
	if p.metrics == nil {
		return
	}
	categories := make(map[string]int, len(spans))
	for _, s := range spans {
		categories[string(s.Label)]++
	}
	p.metrics.RecordLayer(ctx, layer, d, categories)
}

func (p *Pipeline) recordInvocation(ctx context.Context, mode string, res *Result) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordInvocation(ctx, mode, res.Metrics.LLMEnabled, res.Metrics.TotalDuration, res.Metrics.HallucinationsBlocked)
}
