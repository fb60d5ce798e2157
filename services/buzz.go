package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
)

const (
	minBuzzWindow = 10 * time.Millisecond
	maxBuzzWindow = time.Second
)

// EnableBuzz opens a buzz window for the contestants flagged in active.
func (c *Coordinator) EnableBuzz(ctx context.Context, sid string, active map[string]bool) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}

	c.mu.Lock()
	activeIDs := make([]string, 0, len(c.order))
	hijacker := c.meta.question.hijacker
	for _, id := range c.order {
		c.contestants[id].latestBuzz = time.Time{}
		if !active[id] {
			continue
		}
		if hijacker != "" && id != hijacker {
			continue
		}
		activeIDs = append(activeIDs, id)
	}
	c.meta.question.rewinder = ""
	c.meta.buzzWinnerDecided = false
	c.meta.questionAskedTime = c.now()
	c.mu.Unlock()

	c.emit("buzz_enabled", activeIDs, RoomContestants)
	return nil
}

// DisableBuzz closes the current window. A pending arbitration then finds the
// winner already decided and exits.
func (c *Coordinator) DisableBuzz(ctx context.Context, sid string) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}

	c.buzzLock.Lock()
	c.mu.Lock()
	c.meta.buzzWinnerDecided = true
	c.mu.Unlock()
	c.buzzLock.Unlock()

	c.emit("buzz_disabled", nil, RoomContestants)
	return nil
}

// BuzzerPressed records a compensated press, waits for slower contestants'
// presses to arrive and then declares the earliest press the winner. Presses
// outside an open buzz window are discarded.
func (c *Coordinator) BuzzerPressed(ctx context.Context, sid, userID string) error {
	if err := c.requireRoom(sid, RoomContestants); err != nil {
		return err
	}

	c.mu.Lock()
	session, ok := c.contestants[userID]
	if !ok {
		c.mu.Unlock()
		return errors.New(errors.ErrCodeForbidden, "contestant "+userID+" has not joined")
	}
	if c.meta.buzzWinnerDecided || !session.latestBuzz.IsZero() || c.buzzBlocked(userID) {
		c.mu.Unlock()
		return nil
	}
	pressed := c.now().Add(-millis(session.ping))
	session.latestBuzz = pressed
	c.meta.question.buzzReceived = true
	var elapsed float64
	if !c.meta.questionAskedTime.IsZero() {
		elapsed = pressed.Sub(c.meta.questionAskedTime).Seconds()
	}
	c.mu.Unlock()

	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gc, err := requireContestant(game, userID)
	if err != nil {
		return err
	}
	gc.Buzzes++
	if err := c.store.SaveContestants(ctx, gc); err != nil {
		return err
	}

	c.emit("buzz_received", []interface{}{userID, fmt.Sprintf("%.2f", elapsed)}, RoomPresenter)
	c.emit("buzz_received", nil, session.sid)

	window := c.arbitrationWindow()
	if err := c.sleep(ctx, window); err != nil {
		return err
	}

	c.decideBuzzWinner(window)
	return nil
}

// buzzBlocked reports whether a hijack, freeze or rewind by someone else keeps
// userID from buzzing. Callers hold c.mu.
func (c *Coordinator) buzzBlocked(userID string) bool {
	q := c.meta.question
	if q.rewinder != "" && q.rewinder != userID {
		return true
	}
	if q.hijacker != "" && q.hijacker != userID {
		return true
	}
	return q.frozenBy != "" && q.frozenBy != userID
}

// arbitrationWindow is the slowest connected contestant's ping, clamped to [10ms, 1s].
func (c *Coordinator) arbitrationWindow() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	window := minBuzzWindow
	for _, session := range c.contestants {
		if d := millis(session.ping); d > window {
			window = d
		}
	}
	if window > maxBuzzWindow {
		window = maxBuzzWindow
	}
	return window
}

func (c *Coordinator) decideBuzzWinner(window time.Duration) {
	c.buzzLock.Lock()
	c.mu.Lock()
	if c.meta.buzzWinnerDecided {
		c.mu.Unlock()
		c.buzzLock.Unlock()
		return
	}

	var winnerID string
	var earliest time.Time
	for _, id := range c.order {
		pressed := c.contestants[id].latestBuzz
		if pressed.IsZero() {
			continue
		}
		if winnerID == "" || pressed.Before(earliest) {
			winnerID, earliest = id, pressed
		}
	}
	if winnerID == "" {
		c.mu.Unlock()
		c.buzzLock.Unlock()
		c.recorder.RecordBuzzWindow(window, false)
		return
	}

	c.meta.buzzWinnerDecided = true
	c.meta.question.buzzWinner = winnerID
	for _, session := range c.contestants {
		session.latestBuzz = time.Time{}
	}
	winnerSID := c.contestants[winnerID].sid
	c.mu.Unlock()
	c.buzzLock.Unlock()

	c.recorder.RecordBuzzWindow(window, true)
	logger.Info("Buzz winner decided", "game_id", c.gameID, "user_id", winnerID, "window", window)

	c.emit("buzz_winner", nil, winnerSID)
	c.emit("buzz_winner", winnerID, RoomPresenter)
	c.emit("buzz_loser", nil, RoomContestants, winnerSID)
}

func millis(ms float64) time.Duration {
	return time.Duration(math.Round(ms * float64(time.Millisecond)))
}
