package services

import (
	"context"
	"strconv"
	"strings"

	"jeoparty/pkg/logger"
	"jeoparty/security"
)

const (
	minDailyWager       = 100
	dailyWagerPerRound  = 500
	minFinaleWager      = 0
	finaleWagerFloorMax = 1000
	maxFinaleAnswerLen  = 256
)

// parseWager accepts a whole number, optionally surrounded by spaces.
func parseWager(amount string) (int, bool) {
	value, err := strconv.Atoi(strings.TrimSpace(amount))
	return value, err == nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MakeDailyWager validates a daily double stake. The bounds are
// [100, max(score, 500 * round)].
func (c *Coordinator) MakeDailyWager(ctx context.Context, sid, userID, amount string) error {
	if err := c.requireRoom(sid, RoomContestants); err != nil {
		return err
	}
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gc, err := requireContestant(game, userID)
	if err != nil {
		return err
	}

	maxWager := maxInt(gc.Score, dailyWagerPerRound*game.Round)
	value, ok := parseWager(amount)
	if !ok || value < minDailyWager || value > maxWager {
		c.emit("invalid_wager", []int{minDailyWager, maxWager}, sid)
		return nil
	}

	c.emit("daily_wager_made", value, sid)
	c.emit("daily_wager_made", value, RoomPresenter)
	return nil
}

// MakeFinaleWager records a finale stake in [0, max(score, 1000)].
func (c *Coordinator) MakeFinaleWager(ctx context.Context, sid, userID, amount string) error {
	if err := c.requireRoom(sid, RoomContestants); err != nil {
		return err
	}
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gc, err := requireContestant(game, userID)
	if err != nil {
		return err
	}

	maxWager := maxInt(gc.Score, finaleWagerFloorMax)
	value, ok := parseWager(amount)
	if !ok || value < minFinaleWager || value > maxWager {
		c.emit("invalid_wager", []int{minFinaleWager, maxWager}, sid)
		return nil
	}

	gc.FinaleWager = &value
	if err := c.store.SaveContestants(ctx, gc); err != nil {
		return err
	}

	c.emit("finale_wager_made", nil, sid)
	c.emit("contestant_ready", userID, RoomPresenter)
	return nil
}

// GiveFinaleAnswer stores the contestant's finale answer once they have wagered.
func (c *Coordinator) GiveFinaleAnswer(ctx context.Context, sid, userID, answer string) error {
	if err := c.requireRoom(sid, RoomContestants); err != nil {
		return err
	}
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gc, err := requireContestant(game, userID)
	if err != nil {
		return err
	}
	if gc.FinaleWager == nil {
		logger.Debug("Finale answer before wager", "game_id", c.gameID, "user_id", userID)
		return nil
	}

	answer = security.TruncateText(answer, maxFinaleAnswerLen)
	gc.FinaleAnswer = &answer
	if err := c.store.SaveContestants(ctx, gc); err != nil {
		return err
	}

	c.emit("finale_answer_given", nil, sid)
	c.emit("contestant_ready", userID, RoomPresenter)
	return nil
}

func (c *Coordinator) EnableFinaleWager(ctx context.Context, sid string) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}
	c.emit("finale_wager_enabled", nil, RoomContestants)
	return nil
}

func (c *Coordinator) EnableFinaleAnswer(ctx context.Context, sid string) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}
	c.emit("finale_answer_enabled", nil, RoomContestants)
	return nil
}

// FinaleAnswerCorrect adds the recorded wager to the score.
func (c *Coordinator) FinaleAnswerCorrect(ctx context.Context, sid, userID string, amount int) error {
	return c.judgeFinale(ctx, sid, userID, amount, true)
}

// FinaleAnswerWrong subtracts the recorded wager from the score.
func (c *Coordinator) FinaleAnswerWrong(ctx context.Context, sid, userID string, amount int) error {
	return c.judgeFinale(ctx, sid, userID, amount, false)
}

func (c *Coordinator) judgeFinale(ctx context.Context, sid, userID string, amount int, correct bool) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gc, err := requireContestant(game, userID)
	if err != nil {
		return err
	}
	if gc.FinaleWager == nil || gc.FinaleAnswer == nil {
		return nil
	}
	if amount != *gc.FinaleWager {
		logger.Warn("Finale judgment amount differs from wager", "game_id", c.gameID, "user_id", userID, "amount", amount, "wager", *gc.FinaleWager)
	}

	if correct {
		gc.Score += *gc.FinaleWager
		gc.Hits++
	} else {
		gc.Score -= *gc.FinaleWager
		gc.Misses++
	}
	if err := c.store.SaveContestants(ctx, gc); err != nil {
		return err
	}

	c.publishState(ctx, game)
	return nil
}
