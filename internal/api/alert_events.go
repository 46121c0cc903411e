package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/joiedevivre/gifting-service/internal/store"
)

const defaultPingInterval = 25 * time.Second

// ChangeFeed hands out change subscriptions. cancel releases the subscription.
type ChangeFeed interface {
	Subscribe() (changes <-chan string, cancel func())
}

type listenerFeed struct {
	listener *store.Listener
}

// NewListenerFeed exposes a store listener as a ChangeFeed.
func NewListenerFeed(listener *store.Listener) ChangeFeed {
	return listenerFeed{listener: listener}
}

func (f listenerFeed) Subscribe() (<-chan string, func()) {
	sub := f.listener.Subscribe()
	return sub.Changes(), sub.Close
}

// handleAlertEvents streams a "changed" event per modified alert. Clients
// re-fetch the list on each event.
func (h *Handler) handleAlertEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming not supported")
		return
	}

	changes, cancel := h.feed.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 5000\n\n")
	flusher.Flush()

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case id, ok := <-changes:
			if !ok {
				// Listener shut down.
				return
			}
			fmt.Fprintf(w, "event: changed\ndata: %s\n\n", id)
			flusher.Flush()
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
