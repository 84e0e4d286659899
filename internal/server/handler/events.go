package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/alanyoungcy/updownbot/internal/domain"
)

// EventHandler serves the stored trading event log.
type EventHandler struct {
	store  domain.EventStore
	logger *slog.Logger
	now    func() time.Time
}

// NewEventHandler creates an EventHandler. store may be nil.
func NewEventHandler(store domain.EventStore, logger *slog.Logger) *EventHandler {
	return &EventHandler{store: store, logger: logHandler(logger, "events"), now: time.Now}
}

type eventView struct {
	ID   int64     `json:"id"`
	Kind string    `json:"kind"`
	Time time.Time `json:"time"`
	Line string    `json:"line"`
}

// ListEvents returns events recorded since ?since=, an RFC 3339 time or
// unix seconds. The default window is the last 24 hours.
// GET /api/events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "event store not configured")
		return
	}
	since, ok := parseSince(r.URL.Query().Get("since"), h.now())
	if !ok {
		writeError(w, http.StatusBadRequest, "since must be RFC 3339 or unix seconds")
		return
	}
	records, err := h.store.ListSince(r.Context(), since, parseLimit(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		out = append(out, eventView{
			ID:   rec.ID,
			Kind: string(rec.Event.Kind),
			Time: rec.Event.Time,
			Line: rec.Event.Line(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}

func parseSince(v string, now time.Time) (time.Time, bool) {
	if v == "" {
		return now.Add(-24 * time.Hour), true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
		return time.Unix(n, 0), true
	}
	return time.Time{}, false
}
