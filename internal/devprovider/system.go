package devprovider

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/bkpk/pkg/bkpk"
	"github.com/aussiebroadwan/bkpk/pkg/httpx"
)

// HealthResponse is returned by GET /livez.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Version string `json:"version"`
}

func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// BackpackHandler serves the configured backpack to its authenticated owner.
type BackpackHandler struct {
	Backpack bkpk.BackpackOwnerResponse
}

func (h *BackpackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := httpx.ClaimsFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_token", "missing claims")
		return
	}

	resp := h.Backpack
	resp.Owner = claims.Subject
	if resp.BackpackItems == nil {
		resp.BackpackItems = []bkpk.BackpackItem{}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}
