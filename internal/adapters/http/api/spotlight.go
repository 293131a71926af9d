package api

import (
	"fmt"
	"net/http"
	"time"
)

// SpotlightHandler serves the weekly spotlight routes.
type SpotlightHandler struct {
	*base
	deps Dependencies
}

type purgeResponse struct {
	Week    string `json:"week"`
	Removed int    `json:"removed"`
}

// HandleWeek handles GET /spotlight[?at=RFC3339].
func (h *SpotlightHandler) HandleWeek(w http.ResponseWriter, r *http.Request) {
	const op = "api.spotlight"
	at := h.deps.Now()
	if raw := r.URL.Query().Get("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.fail(w, r, NewKind(op, fmt.Errorf("%w: invalid at; must be RFC3339", ErrBadRequest)))
			return
		}
		at = parsed
	}
	poster, err := h.deps.WeeklySpotlight(r.Context(), at)
	if err != nil {
		h.fail(w, r, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, poster)
}

// HandlePurge handles DELETE /spotlight/{week}.
func (h *SpotlightHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	week := r.PathValue("week")
	n, err := h.deps.PurgeSpotlightWeek(r.Context(), week)
	if err != nil {
		h.fail(w, r, Wrap("api.spotlight_purge", err))
		return
	}
	writeJSON(w, http.StatusOK, purgeResponse{Week: week, Removed: n})
}
