// Package health provides HTTP health and readiness check handlers for the
// phiredact server.
//
// Two endpoints are exposed:
//
//   - /healthz: liveness probe; always returns 200 OK.
//   - /readyz: readiness probe; returns 200 only when every registered
//     [Checker] passes (lexicons loaded, extraction model reachable, audit
//     database connectable).
//
// Responses are JSON objects with a top-level "status" field ("ok" or "fail")
// and a "checks" map with per-checker results.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/halcyonhealth/phiredact/internal/lexicon"
	"github.com/halcyonhealth/phiredact/pkg/provider/llm"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Checker is a named health check. Check returns nil when the dependency is
// healthy and an error describing the failure otherwise.
type Checker struct {
	// Name is a short label for this check (e.g. "lexicon", "extraction").
	// It appears as a key in the JSON response.
	Name string

	// Check probes the dependency. It must respect context cancellation.
	Check func(ctx context.Context) error
}

// LexiconChecker verifies the word lists were loaded. An empty location
// deny list means the dictionary layer is inert, which is a deployment
// mistake rather than a runtime failure, so it fails readiness.
func LexiconChecker(lex *lexicon.Store) Checker {
	return Checker{
		Name: "lexicon",
		Check: func(context.Context) error {
			if lex == nil {
				return errors.New("lexicon not loaded")
			}
			if lex.LocationCount() == 0 {
				return errors.New("location deny list is empty")
			}
			return nil
		},
	}
}

// ExtractionChecker verifies the local extraction model answers a minimal
// completion. The pipeline degrades gracefully without it, so deployments
// that intentionally run rules-only should simply not register this check.
func ExtractionChecker(p llm.Provider) Checker {
	return Checker{
		Name: "extraction",
		Check: func(ctx context.Context) error {
			_, err := p.Complete(ctx, llm.CompletionRequest{
				Messages:  []llm.Message{{Role: "user", Content: "ping"}},
				MaxTokens: 1,
			})
			if err != nil {
				return fmt.Errorf("extraction model unavailable: %w", err)
			}
			return nil
		},
	}
}

// Pinger is the subset of a database pool needed for a connectivity check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AuditChecker verifies the audit database is reachable.
func AuditChecker(db Pinger) Checker {
	return Checker{
		Name: "audit",
		Check: func(ctx context.Context) error {
			if err := db.Ping(ctx); err != nil {
				return fmt.Errorf("audit database unreachable: %w", err)
			}
			return nil
		},
	}
}

// result is the JSON response body for health endpoints.
type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves /healthz and /readyz. Safe for concurrent use; the checker
// list is fixed at construction time.
type Handler struct {
	checkers []Checker
}

// New creates a [Handler] that evaluates the given checkers on each /readyz
// request, sequentially in the order provided.
func New(checkers ...Checker) *Handler {
	c := make([]Checker, len(checkers))
	copy(c, checkers)
	return &Handler{checkers: c}
}

// Healthz is a liveness probe that always returns 200 OK.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: "ok"})
}

// Readyz returns 200 only when every registered [Checker] passes. Each
// checker runs under a [checkTimeout] deadline derived from the request
// context.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(h.checkers))
	allOK := true

	for _, c := range h.checkers {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()

		if err != nil {
			checks[c.Name] = "fail: " + err.Error()
			allOK = false
		} else {
			checks[c.Name] = "ok"
		}
	}

	res := result{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, res)
}

// Register adds the /healthz and /readyz routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
