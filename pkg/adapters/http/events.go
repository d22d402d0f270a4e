package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/patchbay/pkg/domain"
)

const eventBuffer = 64

// SubscribeEvents handles GET /events as a server-sent event stream of
// graph notifications. ?types= filters by comma separated event type.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		http.Error(w, "event stream not available", http.StatusNotImplemented)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var watch map[domain.EventType]bool
	if q := r.URL.Query().Get("types"); q != "" {
		watch = make(map[domain.EventType]bool)
		for _, t := range strings.Split(q, ",") {
			watch[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	sub := s.Events.Subscribe(r.Context(), eventBuffer)
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	s.logger.Info("SSE client connected", "remote", r.RemoteAddr)
	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE client disconnected", "remote", r.RemoteAddr)
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if watch != nil && !watch[ev.Type] {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
