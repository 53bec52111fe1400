// Package extract implements the entity extraction client: a narrow wrapper
// around a language model that proposes PERSON/ORG candidates for the
// redaction pipeline's third layer.
//
// The client sends a fixed few-shot prompt instructing the model to emit
// only lines of the form "Entity Text | LABEL" (or the literal token NOTHING
// when no entities are present) and decodes with deterministic parameters:
// temperature 0, a short max-token budget, and stop sequences that truncate
// any reasoning preamble.
//
// Extraction is best-effort by contract. An unavailable model, a timeout, or
// an unparseable response all yield an empty candidate list; the pipeline
// degrades to rules-only output and reports the degradation through its
// llm_enabled metric. Nothing the model claims is trusted until the
// validator re-locates it in the source text.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/halcyonhealth/phiredact/internal/observe"
	"github.com/halcyonhealth/phiredact/internal/redact"
	"github.com/halcyonhealth/phiredact/pkg/provider/llm"
)

const (
	// noneSentinel is the literal the model must emit when the text contains
	// no PERSON or ORG entities.
	noneSentinel = "NOTHING"

	// maxOutputTokens keeps the completion budget short: a list of names,
	// not prose.
	maxOutputTokens = 256
)

// systemPrompt is the fixed few-shot instruction. Dates, emails, and phone
// numbers are explicitly excluded because earlier layers have already tagged
// them; re-emitting them would only produce rejected candidates.
const systemPrompt = `You extract named entities from medical transcript text.

Output one line per entity, in exactly this format:
Entity Text | LABEL

LABEL must be PERSON (a person's name) or ORG (an organization, clinic, hospital, or company).
Only output entities that appear verbatim in the text.
Do NOT output dates, email addresses, phone numbers, or ID numbers.
Do NOT explain your answer. If there are no PERSON or ORG entities, output exactly:
NOTHING

Examples:

Text: "Patient John Smith was referred by Dr. Patel to Mercy General Hospital."
John Smith | PERSON
Patel | PERSON
Mercy General Hospital | ORG

Text: "Follow-up visit on 03/12/2024, blood pressure stable."
NOTHING

Text: "Maria Gonzalez works at Cedar Valley Clinic."
Maria Gonzalez | PERSON
Cedar Valley Clinic | ORG`

// stopSequences truncate generation before the model can start a second
// "Text:" block or an explanation.
var stopSequences = []string{"\nText:", "\n\nText", "Explanation:"}

// artifacts are non-content markers some local models wrap around their
// output: reasoning-trace delimiters, chat-control tokens, and code fences.
// They are stripped before parsing.
var artifacts = []string{
	"<think>", "</think>",
	"<|im_start|>", "<|im_end|>", "<|eot_id|>",
	"```text", "```",
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithObserveMetrics attaches an OTel metrics sink for provider
// request/error counters.
func WithObserveMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTimeout bounds a single extraction call. Zero (the default) applies no
// deadline beyond the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// Client is the entity extraction client. It implements [redact.Extractor]
// and is safe for concurrent use.
//
// The client is explicitly constructed and injected; its provider's
// lifecycle (model load/unload) belongs to the composition root, not to
// ambient global state.
type Client struct {
	provider llm.Provider
	metrics  *observe.Metrics
	timeout  time.Duration
}

// Compile-time interface assertion.
var _ redact.Extractor = (*Client)(nil)

// New returns a Client backed by the given model provider.
func New(provider llm.Provider, opts ...Option) *Client {
	c := &Client{provider: provider}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Extract sends text to the model and parses the returned candidate lines.
//
// A transport-level failure (model unavailable, context cancelled) is
// returned as an error so the pipeline can flag degradation. A response
// that parses to nothing (including the NOTHING sentinel) is an empty
// candidate list with a nil error.
func (c *Client) Extract(ctx context.Context, text string) ([]redact.Candidate, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: "Text: \"" + text + "\""},
		},
		Temperature:   0,
		MaxTokens:     maxOutputTokens,
		StopSequences: stopSequences,
	}

	resp, err := c.provider.Complete(ctx, req)
	if err != nil {
		c.recordRequest(ctx, "error")
		return nil, fmt.Errorf("extract: complete: %w", err)
	}
	c.recordRequest(ctx, "ok")
	if resp == nil {
		return nil, nil
	}

	return ParseCandidates(resp.Content), nil
}

// ParseCandidates parses raw model output into candidates. Artifacts are
// stripped first; then each non-empty line is split on the last '|'.
// Lines without a separator, empty surfaces, and the NOTHING sentinel all
// contribute nothing. Labels are normalised onto the closed category set:
// anything containing PERSON or NAME maps to PERSON, ORG or FACILITY to
// ORG, and the rest to the REDACTED catch-all.
func ParseCandidates(raw string) []redact.Candidate {
	cleaned := stripArtifacts(raw)

	var candidates []redact.Candidate
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.EqualFold(line, noneSentinel) {
			continue
		}
		sep := strings.LastIndex(line, "|")
		if sep < 0 {
			continue
		}
		surface := strings.TrimSpace(line[:sep])
		label := strings.TrimSpace(line[sep+1:])
		if surface == "" || label == "" {
			continue
		}
		candidates = append(candidates, redact.Candidate{
			Text:  surface,
			Label: normalizeLabel(label),
		})
	}
	return candidates
}

// normalizeLabel maps free-form model labels onto the closed category set.
func normalizeLabel(label string) redact.Category {
	u := strings.ToUpper(label)
	switch {
	case strings.Contains(u, "PERSON"), strings.Contains(u, "NAME"):
		return redact.CategoryPerson
	case strings.Contains(u, "ORG"), strings.Contains(u, "FACILITY"):
		return redact.CategoryOrg
	default:
		return redact.CategoryRedacted
	}
}

// stripArtifacts removes known non-content markers and anything inside
// reasoning-trace delimiters.
func stripArtifacts(s string) string {
	// Drop a complete <think>...</think> block including its contents.
	for {
		open := strings.Index(s, "<think>")
		if open < 0 {
			break
		}
		end := strings.Index(s[open:], "</think>")
		if end < 0 {
			s = s[:open]
			break
		}
		s = s[:open] + s[open+end+len("</think>"):]
	}
	for _, a := range artifacts {
		s = strings.ReplaceAll(s, a, "")
	}
	return strings.TrimSpace(s)
}

func (c *Client) recordRequest(ctx context.Context, status string) {
	if c.metrics == nil {
		return
	}
	if status == "error" {
		c.metrics.RecordProviderError(ctx, "llm", "extract")
	}
	c.metrics.RecordProviderRequest(ctx, "llm", "extract", status)
}
