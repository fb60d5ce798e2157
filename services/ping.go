package services

import (
	"context"
	"fmt"
	"math"

	"jeoparty/pkg/errors"
)

const (
	// pingSamples is the size of the rolling window. The mean always divides by
	// the full window, so readings ramp up from zero over the first samples.
	pingSamples = 10
	defaultPing = 30.0
	// maxPingSample bounds a single client-reported half round trip in ms.
	maxPingSample = 1000.0
)

func (s *contestantSession) addPingSample(sample float64) {
	if math.IsNaN(sample) {
		sample = 0
	}
	sample = math.Min(maxPingSample, math.Max(sample, 0))
	s.samples = append(s.samples, sample)

	var sum float64
	for _, v := range s.samples {
		sum += v
	}
	s.ping = sum / pingSamples

	if len(s.samples) == pingSamples {
		s.samples = s.samples[1:]
	}
}

// PingRequest echoes the client's timestamp back to it.
func (c *Coordinator) PingRequest(ctx context.Context, sid, userID string, timestamp float64) error {
	if err := c.requireRoom(sid, RoomContestants); err != nil {
		return err
	}
	c.emit("ping_response", []interface{}{userID, timestamp}, sid)
	return nil
}

// CalculatePing folds one round trip into the contestant's rolling half-RTT
// and reports the displayed value back to the client.
func (c *Coordinator) CalculatePing(ctx context.Context, sid, userID string, sent, received float64) error {
	if err := c.requireRoom(sid, RoomContestants); err != nil {
		return err
	}

	c.mu.Lock()
	session, ok := c.contestants[userID]
	if !ok {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeForbidden, "contestant "+userID+" has not joined")
	}
	session.addPingSample((received - sent) / 2)
	ping := session.ping
	c.mu.Unlock()

	c.emit("ping_calculated", fmt.Sprintf("%.1f", math.Min(999.0, math.Max(ping, 1.0))), sid)
	return nil
}
