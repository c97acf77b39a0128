package maintenance

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"gym-auth/internal/observability"
)

// Sweepable is the part of the revocation registry maintenance needs.
type Sweepable interface {
	Sweep(now time.Time) int
	Len() int
}

type sweepResult struct {
	Status    string `json:"status"`
	Removed   int    `json:"removed"`
	Remaining int    `json:"remaining"`
}

// SweepHandler runs a revocation sweep on demand for schedulers that call in
// over HTTP. It hides itself when no cron secret is configured.
type SweepHandler struct {
	registry   Sweepable
	logger     *observability.Logger
	cronSecret string
	now        func() time.Time
}

func NewSweepHandler(registry Sweepable, logger *observability.Logger, cronSecret string) *SweepHandler {
	return &SweepHandler{
		registry:   registry,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		now:        time.Now,
	}
}

func (h *SweepHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, secret, found := strings.Cut(authHeader, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") ||
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(secret)), []byte(h.cronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	removed := h.registry.Sweep(h.now())
	result := sweepResult{Status: "ok", Removed: removed, Remaining: h.registry.Len()}

	h.logger.Info("revocation_sweep_completed", map[string]any{
		"trigger":   "http",
		"removed":   result.Removed,
		"remaining": result.Remaining,
	})

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
