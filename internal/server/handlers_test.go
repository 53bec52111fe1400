package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/halcyonhealth/phiredact/internal/audit"
	"github.com/halcyonhealth/phiredact/internal/lexicon"
	"github.com/halcyonhealth/phiredact/internal/mapstore"
	"github.com/halcyonhealth/phiredact/internal/redact"
	"github.com/halcyonhealth/phiredact/internal/server"
)

// recordingAudit keeps records in memory for assertions.
type recordingAudit struct {
	audit.NoopStore
	records []audit.Record
}

func (r *recordingAudit) Record(_ context.Context, rec audit.Record) error {
	r.records = append(r.records, rec)
	return nil
}

// stubDrafter echoes a canned note.
type stubDrafter struct {
	note string
	err  error
}

func (s *stubDrafter) Draft(context.Context, string) (string, error) {
	return s.note, s.err
}

func newTestServer(t *testing.T, opts ...server.Option) *server.Server {
	t.Helper()
	lex := lexicon.New(nil, []string{"Boston"})
	pipeline, err := redact.NewPipeline(lex)
	if err != nil {
		t.Fatalf("NewPipeline() error: %v", err)
	}
	return server.New(pipeline, opts...)
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRedact_TagMode(t *testing.T) {
	t.Parallel()
	auditor := &recordingAudit{}
	srv := newTestServer(t, server.WithAuditStore(auditor))
	h := srv.Routes()

	rec := postJSON(t, h, "/v1/redact", map[string]any{
		"text": "Call 555-123-4567 about the Boston visit.",
		"mode": "tag",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		InvocationID string `json:"invocation_id"`
		Output       string `json:"output"`
		Mapping      map[string]string
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Output != "Call [PHONE] about the [LOCATION] visit." {
		t.Errorf("output = %q", resp.Output)
	}
	if resp.InvocationID == "" {
		t.Error("invocation_id missing")
	}
	if resp.Mapping != nil {
		t.Error("tag mode returned a mapping")
	}
	if len(auditor.records) != 1 || auditor.records[0].Mode != "tag" {
		t.Errorf("audit records = %+v", auditor.records)
	}
}

func TestHandleRedact_ReversibleInlineMapping(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	h := srv.Routes()

	rec := postJSON(t, h, "/v1/redact", map[string]any{
		"text": "Seen 01/15/2024 in Boston.",
		"mode": "reversible",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Output  string            `json:"output"`
		Mapping map[string]string `json:"mapping"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Output != "Seen {{DATE_0}} in {{LOCATION_0}}." {
		t.Errorf("output = %q", resp.Output)
	}
	if got := redact.Restore(resp.Output, redact.Mapping(resp.Mapping)); got != "Seen 01/15/2024 in Boston." {
		t.Errorf("round trip = %q", got)
	}
}

func TestHandleRedact_PersistedMappingRestores(t *testing.T) {
	t.Parallel()
	maps := mapstore.NewMemory()
	srv := newTestServer(t, server.WithMapStore(maps))
	h := srv.Routes()

	rec := postJSON(t, h, "/v1/redact", map[string]any{
		"text":            "Seen 01/15/2024 in Boston.",
		"mode":            "reversible",
		"persist_mapping": true,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("redact status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var redactResp struct {
		InvocationID string            `json:"invocation_id"`
		Output       string            `json:"output"`
		Mapping      map[string]string `json:"mapping"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &redactResp); err != nil {
		t.Fatalf("decode redact response: %v", err)
	}
	if redactResp.Mapping != nil {
		t.Error("persisted mapping was also returned inline")
	}

	rec = postJSON(t, h, "/v1/restore", map[string]any{
		"text":          redactResp.Output,
		"invocation_id": redactResp.InvocationID,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("restore status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var restoreResp struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &restoreResp); err != nil {
		t.Fatalf("decode restore response: %v", err)
	}
	if restoreResp.Text != "Seen 01/15/2024 in Boston." {
		t.Errorf("restored = %q", restoreResp.Text)
	}
}

func TestHandleRedact_BadRequests(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	h := srv.Routes()

	cases := []struct {
		name string
		body map[string]any
	}{
		{"missing text", map[string]any{"mode": "tag"}},
		{"invalid mode", map[string]any{"text": "x", "mode": "shredder"}},
	}
	for _, tc := range cases {
		rec := postJSON(t, h, "/v1/redact", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestHandleRestore_RequiresExactlyOneSource(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	h := srv.Routes()

	// Neither source.
	rec := postJSON(t, h, "/v1/restore", map[string]any{"text": "x"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no source: status = %d, want 400", rec.Code)
	}

	// Both sources.
	rec = postJSON(t, h, "/v1/restore", map[string]any{
		"text":          "x",
		"mapping":       map[string]string{"{{PERSON_0}}": "John"},
		"invocation_id": "inv-1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("both sources: status = %d, want 400", rec.Code)
	}

	// Unknown invocation ID.
	rec = postJSON(t, h, "/v1/restore", map[string]any{
		"text":          "x",
		"invocation_id": "inv-unknown",
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}
}

func TestHandleNote_RoundTrip(t *testing.T) {
	t.Parallel()
	d := &stubDrafter{note: "S: Patient seen on {{DATE_0}} in {{LOCATION_0}}."}
	srv := newTestServer(t, server.WithDrafter(d))
	h := srv.Routes()

	rec := postJSON(t, h, "/v1/note", map[string]any{
		"text": "Seen 01/15/2024 in Boston.",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d; body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Note          string   `json:"note"`
		MissingTokens []string `json:"missing_tokens"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Note != "S: Patient seen on 01/15/2024 in Boston." {
		t.Errorf("note = %q", resp.Note)
	}
	if len(resp.MissingTokens) != 0 {
		t.Errorf("missing_tokens = %v, want none", resp.MissingTokens)
	}
}

func TestHandleNote_NotConfigured(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	h := srv.Routes()

	rec := postJSON(t, h, "/v1/note", map[string]any{"text": "x"})
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHandleNote_DraftFailure(t *testing.T) {
	t.Parallel()
	d := &stubDrafter{err: errors.New("rate limited")}
	srv := newTestServer(t, server.WithDrafter(d))
	h := srv.Routes()

	rec := postJSON(t, h, "/v1/note", map[string]any{"text": "Seen in Boston."})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestHandleAuditRecent_LimitValidation(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	h := srv.Routes()

	req := httptest.NewRequest(http.MethodGet, "/v1/audit/recent?limit=0", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestRoutes_HealthAndMetricsExposed(t *testing.T) {
	t.Parallel()
	srv := newTestServer(t)
	h := srv.Routes()

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, rec.Code)
		}
	}
}
