// Package tracking simulates a courier's progress towards a customer for
// orders that are being prepared or are out for delivery. Sessions are
// ephemeral: each open view gets its own, starting from zero.
package tracking

import (
	"math"
	"time"
)

// MinETA is the floor for the estimated minutes remaining.
const MinETA = 1.0

// Status phrases shown to the customer.
const (
	PhraseArrivingAtStore = "Partner arriving at store"
	PhrasePickingUp       = "Order is being picked up"
	PhraseOnTheWay        = "Delivery partner is on the way"
	PhraseNearlyHere      = "Partner is nearly here!"
	PhraseArrived         = "Partner has arrived"
)

// Settings controls the pace of a simulated delivery.
type Settings struct {
	TickInterval time.Duration
	ProgressStep float64
	InitialETA   float64
	ETAStep      float64
}

// DefaultSettings advances half a percent per second and starts the
// estimate at twelve minutes, so a full run takes 200 seconds.
func DefaultSettings() Settings {
	return Settings{
		TickInterval: time.Second,
		ProgressStep: 0.5,
		InitialETA:   12,
		ETAStep:      0.05,
	}
}

// Point is a position on the tracking map, in percent of its width and
// height.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Snapshot is what a tracking view renders after each tick.
type Snapshot struct {
	OrderID    string  `json:"order_id"`
	Tick       int     `json:"tick"`
	Progress   float64 `json:"progress"`
	ETA        float64 `json:"eta"`
	ETAMinutes int     `json:"eta_minutes"`
	Status     string  `json:"status"`
	Position   Point   `json:"position"`
	Arrived    bool    `json:"arrived"`
}

// Session is the state of one simulated delivery. It is not safe for
// concurrent use; Start confines it to a single goroutine.
type Session struct {
	orderID  string
	settings Settings
	ticks    int
}

func NewSession(orderID string, settings Settings) *Session {
	return &Session{orderID: orderID, settings: settings}
}

// Advance moves the session one tick forward. It returns false, leaving
// the state unchanged, once the partner has arrived.
func (s *Session) Advance() bool {
	if s.Arrived() {
		return false
	}
	s.ticks++
	return true
}

// Progress is derived from the tick count so repeated steps never drift.
func (s *Session) Progress() float64 {
	return math.Min(float64(s.ticks)*s.settings.ProgressStep, 100)
}

func (s *Session) ETA() float64 {
	return math.Max(s.settings.InitialETA-float64(s.ticks)*s.settings.ETAStep, MinETA)
}

func (s *Session) Arrived() bool {
	return s.Progress() >= 100
}

func (s *Session) Snapshot() Snapshot {
	progress := s.Progress()
	eta := s.ETA()
	return Snapshot{
		OrderID:    s.orderID,
		Tick:       s.ticks,
		Progress:   progress,
		ETA:        eta,
		ETAMinutes: int(math.Ceil(eta - 1e-9)),
		Status:     PhraseFor(progress),
		Position:   PositionFor(progress),
		Arrived:    progress >= 100,
	}
}

// PhraseFor maps progress in [0,100] to the status shown to the customer.
func PhraseFor(progress float64) string {
	switch {
	case progress < 20:
		return PhraseArrivingAtStore
	case progress < 40:
		return PhrasePickingUp
	case progress < 80:
		return PhraseOnTheWay
	case progress < 100:
		return PhraseNearlyHere
	default:
		return PhraseArrived
	}
}

// PositionFor interpolates the courier between the store at (20,70) and
// the customer at (80,30).
func PositionFor(progress float64) Point {
	return Point{
		X: 20 + progress*0.6,
		Y: 70 - progress*0.4,
	}
}
