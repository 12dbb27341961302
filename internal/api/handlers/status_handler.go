package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zatekoja/medical-mirrors/internal/application/services"
)

// DownloadStatusProvider reports the download orchestrator's state.
type DownloadStatusProvider interface {
	GetStatus(now time.Time) services.OrchestratorStatus
}

// refresher is implemented by providers whose state is written by another process.
type refresher interface {
	Refresh() error
}

// StatusHandler serves pipeline status
type StatusHandler struct {
	provider DownloadStatusProvider
	now      func() time.Time
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(provider DownloadStatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider, now: time.Now}
}

// GetStatus handles GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		respondWithError(w, http.StatusServiceUnavailable, "download status is not configured")
		return
	}
	if rf, ok := h.provider.(refresher); ok {
		if err := rf.Refresh(); err != nil {
			// Serve the last known state rather than nothing.
			log.Warn().Err(err).Msg("failed to refresh download state")
		}
	}
	respondWithJSON(w, http.StatusOK, h.provider.GetStatus(h.now()))
}
