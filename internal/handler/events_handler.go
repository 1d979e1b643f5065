package handler

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/parisxmas/OxiDB/OxiAudit/internal/uploads"
)

const eventBuffer = 64

// EventsHandler streams upload progress as server-sent events.
type EventsHandler struct {
	hub       *uploads.Hub
	heartbeat time.Duration
}

func NewEventsHandler(hub *uploads.Hub) *EventsHandler {
	return &EventsHandler{hub: hub, heartbeat: 15 * time.Second}
}

// Stream forwards hub events, optionally narrowed to one scopeId, until the
// client goes away. Events are dropped for a client that stops reading.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	scopeID := r.URL.Query().Get("scopeId")

	ch := make(chan uploads.Event, eventBuffer)
	sub := h.hub.Subscribe(func(e uploads.Event) {
		if scopeID != "" && e.ScopeID != scopeID {
			return
		}
		select {
		case ch <- e:
		default:
			log.Printf("Warning: events: slow client, dropped %s %d%%", e.ID, e.Progress)
		}
	})
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case e := <-ch:
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: upload\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
