package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/halcyonhealth/phiredact/internal/audit"
	"github.com/halcyonhealth/phiredact/internal/config"
	"github.com/halcyonhealth/phiredact/internal/mapstore"
	"github.com/halcyonhealth/phiredact/internal/notegen"
	"github.com/halcyonhealth/phiredact/internal/redact"
)

// maxBodyBytes bounds request bodies. Transcripts are text; 4 MiB is ample.
const maxBodyBytes = 4 << 20

type redactRequest struct {
	// Text is the transcript to redact.
	Text string `json:"text"`

	// Mode is "tag" or "reversible". Empty uses the server default.
	Mode string `json:"mode"`

	// PersistMapping stores the restoration mapping locally under the
	// invocation ID instead of returning it inline. Reversible mode only.
	PersistMapping bool `json:"persist_mapping"`
}

type redactResponse struct {
	InvocationID string            `json:"invocation_id"`
	Mode         string            `json:"mode"`
	Output       string            `json:"output"`
	Entities     []redact.Span     `json:"entities"`
	Mapping      map[string]string `json:"mapping,omitempty"`
	Metrics      metricsDTO        `json:"metrics"`
}

// metricsDTO is the wire form of pipeline metrics, with durations in
// milliseconds.
type metricsDTO struct {
	RuleMS                float64 `json:"rule_ms"`
	DictionaryMS          float64 `json:"dictionary_ms"`
	ModelMS               float64 `json:"model_ms"`
	TotalMS               float64 `json:"total_ms"`
	RuleCount             int     `json:"rule_count"`
	DictionaryCount       int     `json:"dictionary_count"`
	ModelCount            int     `json:"model_count"`
	HallucinationsBlocked int     `json:"hallucinations_blocked"`
	LLMEnabled            bool    `json:"llm_enabled"`
}

func toMetricsDTO(m redact.Metrics) metricsDTO {
	return metricsDTO{
		RuleMS:                float64(m.RuleDuration.Microseconds()) / 1000,
		DictionaryMS:          float64(m.DictionaryDuration.Microseconds()) / 1000,
		ModelMS:               float64(m.ModelDuration.Microseconds()) / 1000,
		TotalMS:               float64(m.TotalDuration.Microseconds()) / 1000,
		RuleCount:             m.RuleCount,
		DictionaryCount:       m.DictionaryCount,
		ModelCount:            m.ModelCount,
		HallucinationsBlocked: m.HallucinationsBlocked,
		LLMEnabled:            m.LLMEnabled,
	}
}

func (s *Server) handleRedact(w http.ResponseWriter, r *http.Request) {
	var req redactRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	mode := s.defaultMode
	if req.Mode != "" {
		mode = config.Mode(req.Mode)
		if !mode.IsValid() {
			writeError(w, http.StatusBadRequest, "mode must be \"tag\" or \"reversible\"")
			return
		}
	}

	ctx := r.Context()
	var res *redact.Result
	switch mode {
	case config.ModeReversible:
		res = s.pipeline.RedactReversible(ctx, req.Text)
	default:
		res = s.pipeline.RedactTags(ctx, req.Text)
	}

	invocationID := uuid.NewString()
	s.recordAudit(r, invocationID, string(mode), res.Metrics)

	resp := redactResponse{
		InvocationID: invocationID,
		Mode:         string(mode),
		Output:       res.Output,
		Entities:     res.Entities,
		Metrics:      toMetricsDTO(res.Metrics),
	}
	if mode == config.ModeReversible {
		if req.PersistMapping {
			if err := s.maps.Put(ctx, invocationID, res.Mapping); err != nil {
				s.logger.Error("persist mapping failed", "invocation_id", invocationID, "error", err)
				writeError(w, http.StatusInternalServerError, "failed to persist mapping")
				return
			}
		} else {
			resp.Mapping = res.Mapping
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type restoreRequest struct {
	// Text is placeholder text to restore.
	Text string `json:"text"`

	// Mapping restores inline. Mutually exclusive with InvocationID.
	Mapping map[string]string `json:"mapping,omitempty"`

	// InvocationID restores from a mapping persisted by a prior redact
	// call with persist_mapping set.
	InvocationID string `json:"invocation_id,omitempty"`
}

type restoreResponse struct {
	Text string `json:"text"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	if (req.Mapping == nil) == (req.InvocationID == "") {
		writeError(w, http.StatusBadRequest, "exactly one of mapping or invocation_id is required")
		return
	}

	mapping := redact.Mapping(req.Mapping)
	if req.InvocationID != "" {
		var err error
		mapping, err = s.maps.Get(r.Context(), req.InvocationID)
		if errors.Is(err, mapstore.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no mapping stored for invocation_id")
			return
		}
		if err != nil {
			s.logger.Error("load mapping failed", "invocation_id", req.InvocationID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load mapping")
			return
		}
	}

	writeJSON(w, http.StatusOK, restoreResponse{Text: redact.Restore(req.Text, mapping)})
}

type noteRequest struct {
	// Text is the raw transcript. It is redacted reversibly before any
	// network call; only placeholder text reaches the cloud model.
	Text string `json:"text"`
}

type noteResponse struct {
	InvocationID  string     `json:"invocation_id"`
	Note          string     `json:"note"`
	MissingTokens []string   `json:"missing_tokens,omitempty"`
	Metrics       metricsDTO `json:"metrics"`
}

func (s *Server) handleNote(w http.ResponseWriter, r *http.Request) {
	if s.drafter == nil {
		writeError(w, http.StatusNotImplemented, "note generation is not configured")
		return
	}
	var req noteRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	ctx := r.Context()
	res := s.pipeline.RedactReversible(ctx, req.Text)
	invocationID := uuid.NewString()
	s.recordAudit(r, invocationID, "reversible", res.Metrics)

	draft, err := s.drafter.Draft(ctx, res.Output)
	if err != nil {
		s.logger.Error("note draft failed", "invocation_id", invocationID, "error", err)
		writeError(w, http.StatusBadGateway, "note drafting failed")
		return
	}

	writeJSON(w, http.StatusOK, noteResponse{
		InvocationID:  invocationID,
		Note:          redact.Restore(draft, res.Mapping),
		MissingTokens: notegen.MissingTokens(draft, res.Mapping),
		Metrics:       toMetricsDTO(res.Metrics),
	})
}

type auditRecentResponse struct {
	Invocations []auditRecordDTO `json:"invocations"`
}

type auditRecordDTO struct {
	InvocationID          string  `json:"invocation_id"`
	Mode                  string  `json:"mode"`
	LLMEnabled            bool    `json:"llm_enabled"`
	RuleCount             int     `json:"rule_count"`
	DictionaryCount       int     `json:"dictionary_count"`
	ModelCount            int     `json:"model_count"`
	HallucinationsBlocked int     `json:"hallucinations_blocked"`
	TotalMS               float64 `json:"total_ms"`
	CreatedAt             string  `json:"created_at"`
}

func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be an integer in [1, 1000]")
			return
		}
		limit = n
	}

	records, err := s.auditor.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to query audit store")
		return
	}

	out := make([]auditRecordDTO, 0, len(records))
	for _, rec := range records {
		out = append(out, auditRecordDTO{
			InvocationID:          rec.InvocationID,
			Mode:                  rec.Mode,
			LLMEnabled:            rec.LLMEnabled,
			RuleCount:             rec.RuleCount,
			DictionaryCount:       rec.DictionaryCount,
			ModelCount:            rec.ModelCount,
			HallucinationsBlocked: rec.HallucinationsBlocked,
			TotalMS:               float64(rec.TotalDuration.Microseconds()) / 1000,
			CreatedAt:             rec.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
		})
	}
	writeJSON(w, http.StatusOK, auditRecentResponse{Invocations: out})
}

// recordAudit writes the invocation row. Audit failure never fails the
// request.
func (s *Server) recordAudit(r *http.Request, invocationID, mode string, m redact.Metrics) {
	rec := audit.Record{
		InvocationID:          invocationID,
		Mode:                  mode,
		LLMEnabled:            m.LLMEnabled,
		RuleCount:             m.RuleCount,
		DictionaryCount:       m.DictionaryCount,
		ModelCount:            m.ModelCount,
		HallucinationsBlocked: m.HallucinationsBlocked,
		RuleDuration:          m.RuleDuration,
		DictionaryDuration:    m.DictionaryDuration,
		ModelDuration:         m.ModelDuration,
		TotalDuration:         m.TotalDuration,
	}
	if err := s.auditor.Record(r.Context(), rec); err != nil {
		s.logger.Warn("audit record failed", "invocation_id", invocationID, "error", err)
	}
}

// decodeJSON decodes the request body into v, writing a 400 and returning
// false on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failure"}`, http.StatusInternalServerError)
	}
}
