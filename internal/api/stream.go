package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/query"
	"github.com/example/localmart/internal/readmodel"
	"github.com/example/localmart/internal/tracking"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SSE event types
const (
	sseEventTracking  = "tracking"
	sseEventArrived   = "arrived"
	sseEventSnapshot  = "snapshot"
	sseEventOrder     = "order"
	sseEventHeartbeat = "heartbeat"
)

const (
	feedBuffer        = 32
	heartbeatInterval = 30 * time.Second
)

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	id      uint64
}

// startSSE writes the stream headers. It fails when w cannot flush.
func startSSE(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming not supported")
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes one event. An error means the client is gone.
func (s *sseWriter) send(eventType string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}
	s.id++
	if _, err := fmt.Fprintf(s.w, "event: %s\nid: %d\ndata: %s\n\n", eventType, s.id, payload); err != nil {
		return fmt.Errorf("write %s event: %w", eventType, err)
	}
	s.flusher.Flush()
	return nil
}

// TrackOrder streams a delivery tracking session for one of the customer's
// in-flight orders. The session ends when the partner arrives or the client
// disconnects.
func (h *Handlers) TrackOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	ctx, cancel := context.WithCancel(r.Context())

	snapshots := make(chan tracking.Snapshot, 8)
	handle, err := h.tracking.Open(ctx, principal(r), orderID, func(s tracking.Snapshot) {
		select {
		case snapshots <- s:
		case <-ctx.Done():
		}
	})
	if err != nil {
		cancel()
		h.writeServiceError(w, r, err)
		return
	}
	// cancel runs first so a session blocked on the channel can exit.
	defer handle.Stop()
	defer cancel()

	stream, ok := startSSE(w)
	if !ok {
		return
	}

	send := func(s tracking.Snapshot) bool {
		eventType := sseEventTracking
		if s.Arrived {
			eventType = sseEventArrived
		}
		if err := stream.send(eventType, s); err != nil {
			h.logger.Debug("tracking client disconnected", zap.String("order_id", orderID), zap.Error(err))
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case s := <-snapshots:
			if !send(s) {
				return
			}
		case <-handle.Done():
			// the session goroutine has exited; flush what it left behind
			for {
				select {
				case s := <-snapshots:
					if !send(s) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// OrderFeed streams the caller's current orders followed by every update
// to an order the caller may see.
func (h *Handlers) OrderFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p := principal(r)

	// subscribe before listing so no update falls between the two
	updates := h.feed.Subscribe(ctx, func(o *readmodel.OrderReadModel) bool {
		return query.Visible(p, o)
	}, feedBuffer)

	orders, err := h.queryHandler.ListOrders(ctx, p)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	stream, ok := startSSE(w)
	if !ok {
		return
	}
	if err := stream.send(sseEventSnapshot, orders); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if err := stream.send(sseEventHeartbeat, map[string]any{}); err != nil {
				return
			}
		case o, ok := <-updates:
			if !ok {
				return
			}
			if err := stream.send(sseEventOrder, o); err != nil {
				h.logger.Debug("feed client disconnected", zap.String("principal", actor.Describe(p)), zap.Error(err))
				return
			}
		}
	}
}
