// Package notegen drafts clinical notes from redacted transcripts through a
// cloud model.
//
// This is the one boundary placeholder text is allowed to cross: the input
// is always a reversible-mode redaction output, never raw transcript text.
// The contract with the cloud service is textual: every {{LABEL_n}}
// placeholder token must be echoed verbatim in the drafted note so that
// restoration can substitute the original values back in afterwards, on
// device.
package notegen

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/halcyonhealth/phiredact/internal/observe"
	"github.com/halcyonhealth/phiredact/internal/redact"
)

// draftSystemPrompt instructs the cloud model to write the note over
// placeholder tokens without altering them.
const draftSystemPrompt = `You are a medical scribe. Draft a concise clinical note (SOAP format) from the visit transcript below.

The transcript contains placeholder tokens of the form {{LABEL_n}} in place of redacted patient information. You MUST copy every placeholder token into the note exactly as written, character for character. Never invent, renumber, reformat, or omit a placeholder token.`

// Drafter produces a clinical note draft from placeholder text. The
// production implementation calls a cloud model; tests substitute a stub.
type Drafter interface {
	Draft(ctx context.Context, placeholderText string) (string, error)
}

// Option is a functional option for [Client].
type Option func(*Client)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout. Default: 60s.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithObserveMetrics attaches an OTel metrics sink for provider counters.
func WithObserveMetrics(m *observe.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client implements [Drafter] against the OpenAI chat completions API.
type Client struct {
	client  oai.Client
	model   string
	baseURL string
	timeout time.Duration
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ Drafter = (*Client)(nil)

// New constructs a note-generation client.
func New(apiKey, model string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("notegen: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("notegen: model must not be empty")
	}

	c := &Client{model: model, timeout: 60 * time.Second}
	for _, o := range opts {
		o(c)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Timeout: c.timeout}),
	}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	c.client = oai.NewClient(reqOpts...)
	return c, nil
}

// Draft sends placeholderText to the cloud model and returns the drafted
// note. The input must already be redacted; Draft performs no redaction of
// its own.
func (c *Client) Draft(ctx context.Context, placeholderText string) (string, error) {
	params := oai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(draftSystemPrompt),
			oai.UserMessage(placeholderText),
		},
		Temperature: param.NewOpt(0.2),
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		c.record(ctx, "error")
		return "", fmt.Errorf("notegen: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		c.record(ctx, "error")
		return "", fmt.Errorf("notegen: empty choices in response")
	}
	c.record(ctx, "ok")
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) record(ctx context.Context, status string) {
	if c.metrics == nil {
		return
	}
	if status == "error" {
		c.metrics.RecordProviderError(ctx, "openai", "notegen")
	}
	c.metrics.RecordProviderRequest(ctx, "openai", "notegen", status)
}

// MissingTokens returns the placeholder tokens from mapping that the drafted
// note failed to echo, sorted for stable output. A missing token is not an
// error (restoration simply no-ops on it), but callers should surface the
// list so the gap is visible.
func MissingTokens(note string, mapping redact.Mapping) []string {
	var missing []string
	for tok := range mapping {
		if !strings.Contains(note, tok) {
			missing = append(missing, tok)
		}
	}
	sort.Strings(missing)
	return missing
}

// GenerateNote runs the full round trip: draft a note from the
// reversible-mode redaction result, check the placeholder echo contract,
// and restore original values into the draft. Only res.Output ever reaches
// the Drafter; res.Mapping stays local.
func GenerateNote(ctx context.Context, d Drafter, res *redact.Result) (string, error) {
	if res.Mapping == nil {
		return "", fmt.Errorf("notegen: result has no mapping; reversible mode required")
	}

	draft, err := d.Draft(ctx, res.Output)
	if err != nil {
		return "", err
	}

	if missing := MissingTokens(draft, res.Mapping); len(missing) > 0 {
		slog.Warn("drafted note dropped placeholder tokens",
			"missing", strings.Join(missing, ", "))
	}

	return redact.Restore(draft, res.Mapping), nil
}
