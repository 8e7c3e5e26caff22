package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/example/localmart/internal/metrics"
)

// Ticker delivers ticks until stopped. *time.Ticker is adapted by NewTicker.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop() { t.t.Stop() }

// NewTicker returns a Ticker backed by time.NewTicker.
func NewTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Handle controls a running session.
type Handle struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Stop ends the session and waits for its goroutine to exit. After Stop
// returns, onTick is not called again. Stop is safe to call more than once
// and after the session finished on its own.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

// Done is closed when the session goroutine has exited, either because the
// partner arrived, the context ended or Stop was called.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Start runs session on ticker in a new goroutine. onTick receives the
// initial state right away and then one snapshot per tick; it is always
// called from that goroutine. The ticker is stopped when the session ends.
func Start(ctx context.Context, session *Session, ticker Ticker, onTick func(Snapshot)) *Handle {
	h := &Handle{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	metrics.TrackingSessionsActive.Inc()
	go func() {
		defer close(h.done)
		defer metrics.TrackingSessionsActive.Dec()
		defer ticker.Stop()

		onTick(session.Snapshot())
		if session.Arrived() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-h.stop:
				return
			case <-ticker.C():
				// Stop may race with a tick; a requested stop wins.
				select {
				case <-h.stop:
					return
				default:
				}
				if !session.Advance() {
					return
				}
				onTick(session.Snapshot())
				if session.Arrived() {
					return
				}
			}
		}
	}()
	return h
}
