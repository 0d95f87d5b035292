package synchub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/flagkit/pkg/storage"
)

// HTTPHandler serves flag state over HTTP: an ETag-aware poll endpoint for
// clients that cannot hold a connection, and an SSE stream for those that
// can.
type HTTPHandler struct {
	hub   *Hub
	store storage.Store
}

// NewHTTPHandler creates the handler. Mount Routes on any chi router.
func NewHTTPHandler(hub *Hub, store storage.Store) *HTTPHandler {
	return &HTTPHandler{hub: hub, store: store}
}

// Routes returns the sync endpoints:
//
//	GET /flags   current definitions, 304 on If-None-Match or If-Modified-Since
//	GET /events  SSE stream of change events
func (h *HTTPHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/flags", h.handlePoll)
	r.Get("/events", h.handleEvents)
	return r
}

func (h *HTTPHandler) handlePoll(w http.ResponseWriter, r *http.Request) {
	etag := fmt.Sprintf(`"v%d"`, h.hub.Version())
	w.Header().Set("ETag", etag)
	w.Header().Set("Last-Modified", h.hub.LastModified().UTC().Format(http.TimeFormat))
	w.Header().Set("Cache-Control", "no-cache")

	// If-None-Match wins over If-Modified-Since when both are present.
	if match := r.Header.Get("If-None-Match"); match != "" {
		if match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else if since := r.Header.Get("If-Modified-Since"); since != "" {
		// HTTP dates carry second granularity, so compare truncated.
		if t, err := http.ParseTime(since); err == nil && !h.hub.LastModified().Truncate(time.Second).After(t) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	flags, err := h.store.List(r.Context(), storage.Filter{})
	if err != nil {
		http.Error(w, "failed to load flags", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"flags":   flags,
		"version": h.hub.Version(),
	})
}

func (h *HTTPHandler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	sub, err := h.hub.Subscribe(r.Context())
	if err != nil {
		http.Error(w, "failed to subscribe", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, raw)
			flusher.Flush()
		}
	}
}
