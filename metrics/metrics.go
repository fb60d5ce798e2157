package metrics

import (
	"sync"
	"time"
)

// Common metric attribute keys.
const (
	AttrMethod = "method"
	AttrPath   = "path"
	AttrStatus = "status"
	AttrEvent  = "event"
	AttrResult = "result"
	AttrPower  = "power"
)

// Event results.
const (
	ResultHandled = "handled"
	ResultDropped = "dropped"
	ResultFailed  = "failed"
)

// Recorder keeps in-memory counters for game events and forwards them to
// OpenTelemetry when configured. A nil Recorder is valid and records nothing.
type Recorder struct {
	mu          sync.Mutex
	events      map[string]map[string]int
	buzzWinners int
	powerUps    map[string]int
	lastWindow  time.Duration
	otel        *otelInstruments
}

func NewRecorder() *Recorder {
	return newRecorder(nil)
}

func newRecorder(otel *otelInstruments) *Recorder {
	return &Recorder{
		events:   make(map[string]map[string]int),
		powerUps: make(map[string]int),
		otel:     otel,
	}
}

// RecordEvent counts one inbound socket event with its outcome.
func (r *Recorder) RecordEvent(event, result string, duration time.Duration) {
	if r == nil {
		return
	}

	r.mu.Lock()
	byResult, ok := r.events[event]
	if !ok {
		byResult = make(map[string]int)
		r.events[event] = byResult
	}
	byResult[result]++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordEvent(event, result, duration)
	}
}

// RecordBuzzWindow tracks the arbitration sleep and whether it produced a winner.
func (r *Recorder) RecordBuzzWindow(window time.Duration, winner bool) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.lastWindow = window
	if winner {
		r.buzzWinners++
	}
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordBuzzWindow(window, winner)
	}
}

func (r *Recorder) RecordPowerUpUsed(power string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	r.powerUps[power]++
	r.mu.Unlock()

	if r.otel != nil {
		r.otel.recordPowerUp(power)
	}
}

// RecordHTTPRequest tracks basic HTTP metrics.
func (r *Recorder) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if r == nil || r.otel == nil {
		return
	}
	r.otel.recordHTTPRequest(method, path, status, duration)
}

// Events returns how many times event ended with result.
func (r *Recorder) Events(event, result string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[event][result]
}

func (r *Recorder) BuzzWinners() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buzzWinners
}

func (r *Recorder) PowerUpsUsed(power string) int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.powerUps[power]
}

// LastBuzzWindow returns the most recent arbitration sleep.
func (r *Recorder) LastBuzzWindow() time.Duration {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastWindow
}
