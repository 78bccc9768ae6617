package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/YannKr/certstamp/internal/apperr"
	"github.com/YannKr/certstamp/internal/worker"
)

// BatchSSE handles GET /api/v1/batches/{id}/events
//
// Streams "progress" events until the job finishes, then one "done" event
// carrying the final snapshot.
func (h *Handler) BatchSSE(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		renderJSONError(w, http.StatusInternalServerError, "INTERNAL", "streaming not supported")
		return
	}

	// Subscribe before reading the snapshot so a job finishing in between
	// is not missed.
	ch, unsub := h.SSE.Subscribe(worker.Topic(id))
	defer unsub()

	snap, ok := h.Batches.Get(id)
	if !ok {
		renderError(w, r, apperr.NotFound("batch"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	if snap.State == worker.StateDone || snap.State == worker.StateCancelled {
		data, _ := json.Marshal(snap)
		fmt.Fprintf(w, "event: done\ndata: %s\n\n", data)
		flusher.Flush()
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, evt.Data)
			flusher.Flush()
			if evt.Type == "done" {
				return
			}
		}
	}
}
