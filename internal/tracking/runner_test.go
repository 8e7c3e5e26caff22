package tracking

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	ch       chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func newFakeTicker() *fakeTicker {
	return &fakeTicker{ch: make(chan time.Time), stopped: make(chan struct{})}
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }

func (f *fakeTicker) Stop() { f.stopOnce.Do(func() { close(f.stopped) }) }

// tick blocks until the session goroutine has taken the tick.
func (f *fakeTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case f.ch <- time.Now():
	case <-time.After(time.Second):
		t.Fatal("session did not take the tick")
	}
}

func (f *fakeTicker) isStopped() bool {
	select {
	case <-f.stopped:
		return true
	default:
		return false
	}
}

type recorder struct {
	snaps chan Snapshot
}

func newRecorder() *recorder { return &recorder{snaps: make(chan Snapshot, 512)} }

func (r *recorder) onTick(s Snapshot) { r.snaps <- s }

func (r *recorder) next(t *testing.T) Snapshot {
	t.Helper()
	select {
	case s := <-r.snaps:
		return s
	case <-time.After(time.Second):
		t.Fatal("no snapshot")
		return Snapshot{}
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not finish")
	}
}

// ============================================
// Start / Stop Tests
// ============================================

func TestStart_EmitsInitialThenOnePerTick(t *testing.T) {
	ticker := newFakeTicker()
	rec := newRecorder()

	h := Start(context.Background(), NewSession("LOC-1", DefaultSettings()), ticker, rec.onTick)
	defer h.Stop()

	assert.Equal(t, 0, rec.next(t).Tick)
	ticker.tick(t)
	assert.Equal(t, 0.5, rec.next(t).Progress)
	ticker.tick(t)
	assert.Equal(t, 1.0, rec.next(t).Progress)
}

func TestHandle_Stop_IsDeterministic(t *testing.T) {
	ticker := newFakeTicker()
	rec := newRecorder()
	h := Start(context.Background(), NewSession("LOC-1", DefaultSettings()), ticker, rec.onTick)
	rec.next(t)
	ticker.tick(t)
	rec.next(t)

	h.Stop()

	assert.True(t, ticker.isStopped())
	select {
	case <-h.Done():
	default:
		t.Fatal("Done not closed after Stop returned")
	}

	// nobody receives ticks any more
	select {
	case ticker.ch <- time.Now():
		t.Fatal("tick delivered after Stop")
	case <-time.After(20 * time.Millisecond):
	}
	assert.Empty(t, rec.snaps)

	// second Stop is a no-op
	h.Stop()
}

func TestStart_ContextCancelEndsSession(t *testing.T) {
	ticker := newFakeTicker()
	rec := newRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	h := Start(ctx, NewSession("LOC-1", DefaultSettings()), ticker, rec.onTick)
	rec.next(t)
	cancel()

	waitDone(t, h)
	assert.True(t, ticker.isStopped())
}

func TestStart_EndsOnArrival(t *testing.T) {
	settings := DefaultSettings()
	settings.ProgressStep = 50
	ticker := newFakeTicker()
	rec := newRecorder()

	h := Start(context.Background(), NewSession("LOC-1", settings), ticker, rec.onTick)
	rec.next(t)
	ticker.tick(t)
	assert.Equal(t, 50.0, rec.next(t).Progress)
	ticker.tick(t)
	last := rec.next(t)

	waitDone(t, h)
	assert.True(t, last.Arrived)
	assert.Equal(t, PhraseArrived, last.Status)
	assert.True(t, ticker.isStopped())
	h.Stop()
}

func TestStart_IndependentSessions(t *testing.T) {
	t1, t2 := newFakeTicker(), newFakeTicker()
	r1, r2 := newRecorder(), newRecorder()

	h1 := Start(context.Background(), NewSession("LOC-1", DefaultSettings()), t1, r1.onTick)
	h2 := Start(context.Background(), NewSession("LOC-1", DefaultSettings()), t2, r2.onTick)
	r1.next(t)
	r2.next(t)

	for i := 0; i < 4; i++ {
		t1.tick(t)
		r1.next(t)
	}
	t2.tick(t)

	require.Equal(t, 0.5, r2.next(t).Progress, "second view starts from zero")
	h1.Stop()
	h2.Stop()
}

func TestNewTicker_Ticks(t *testing.T) {
	ticker := NewTicker(time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}
}
