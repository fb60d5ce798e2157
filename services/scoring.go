package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"jeoparty/models"
	"jeoparty/pkg/errors"
)

// hijackMultiplier scales the value of a question answered by its hijacker.
const hijackMultiplier = 1.5

// ContestantInfo is a partial scoreboard override sent by the presenter.
type ContestantInfo struct {
	Hits   *int            `json:"hits,omitempty"`
	Misses *int            `json:"misses,omitempty"`
	Score  *int            `json:"score,omitempty"`
	Powers map[string]bool `json:"powers,omitempty"`
}

// mergeChanged returns gc followed by the rows in others that are not gc.
func mergeChanged(gc *models.GameContestant, others []*models.GameContestant) []*models.GameContestant {
	rows := []*models.GameContestant{gc}
	for _, other := range others {
		if other != gc {
			rows = append(rows, other)
		}
	}
	return rows
}

func (c *Coordinator) notifyContestant(userID string, info interface{}) {
	if sessionSID, ok := c.sessionSID(userID); ok {
		c.emit("contestant_info_changed", info, sessionSID)
	}
}

// CorrectAnswer credits userID and hands them the turn.
func (c *Coordinator) CorrectAnswer(ctx context.Context, sid, userID string, value int) error {
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

	award := value
	c.mu.Lock()
	if c.meta.question.hijacker == userID && value > 0 {
		award = int(math.Ceil(float64(value) * hijackMultiplier))
		c.meta.question.bonus = &awardedBonus{userID: userID, value: value, award: award}
	}
	c.meta.question.buzzWinner = ""
	c.meta.question.frozenBy = ""
	c.meta.question.rewinder = ""
	c.mu.Unlock()

	gc.Hits++
	gc.Score += award
	changed := game.SetTurn(userID)
	if err := c.store.SaveContestants(ctx, mergeChanged(gc, changed)...); err != nil {
		return err
	}

	c.notifyContestant(userID, map[string]int{"hits": gc.Hits, "score": gc.Score})
	c.publishState(ctx, game)
	return nil
}

// WrongAnswer debits userID and makes them eligible for a rewind.
func (c *Coordinator) WrongAnswer(ctx context.Context, sid, userID string, value int) error {
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

	c.mu.Lock()
	c.meta.question.lastWrong = userID
	c.meta.question.buzzWinner = ""
	c.meta.question.frozenBy = ""
	c.meta.question.rewinder = ""
	if c.meta.question.hijacker == userID {
		c.meta.question.hijacker = ""
	}
	c.mu.Unlock()

	gc.Misses++
	gc.Score -= value
	if err := c.store.SaveContestants(ctx, gc); err != nil {
		return err
	}

	c.notifyContestant(userID, map[string]int{"misses": gc.Misses, "score": gc.Score})
	c.publishState(ctx, game)
	return nil
}

// UndoAnswer reverts a judgment. A negative value undoes a correct answer,
// a positive one a wrong answer.
func (c *Coordinator) UndoAnswer(ctx context.Context, sid, userID string, value int) error {
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

	if value < 0 {
		c.mu.Lock()
		if bonus := c.meta.question.bonus; bonus != nil && bonus.userID == userID && bonus.value == -value {
			value = -bonus.award
			c.meta.question.bonus = nil
		}
		c.mu.Unlock()
		gc.Hits--
	} else {
		gc.Misses--
	}
	gc.Score += value
	if err := c.store.SaveContestants(ctx, gc); err != nil {
		return err
	}

	var skip []string
	if sessionSID, ok := c.sessionSID(userID); ok {
		skip = append(skip, sessionSID)
	}
	c.emit("buzz_disabled", nil, RoomContestants, skip...)
	c.publishState(ctx, game)
	return nil
}

// RewindUsed refunds a wrong answer after the contestant spent their rewind,
// gives them the turn and reopens the buzzer for them alone.
func (c *Coordinator) RewindUsed(ctx context.Context, sid, userID string, value int) error {
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

	gc.Score += value
	gc.Misses--
	changed := game.SetTurn(userID)
	if err := c.store.SaveContestants(ctx, mergeChanged(gc, changed)...); err != nil {
		return err
	}

	c.mu.Lock()
	c.meta.question.lastWrong = ""
	c.meta.question.rewinder = userID
	if session, ok := c.contestants[userID]; ok {
		session.latestBuzz = time.Time{}
	}
	c.meta.buzzWinnerDecided = false
	c.meta.questionAskedTime = c.now()
	c.mu.Unlock()

	c.notifyContestant(userID, map[string]int{"misses": gc.Misses, "score": gc.Score})
	if sessionSID, ok := c.sessionSID(userID); ok {
		c.emit("buzz_enabled", []string{userID}, sessionSID)
	}
	c.publishState(ctx, game)
	return nil
}

// FirstTurn hands the opening turn to userID.
func (c *Coordinator) FirstTurn(ctx context.Context, sid, userID string) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	if _, err := requireContestant(game, userID); err != nil {
		return err
	}

	if err := c.store.SaveContestants(ctx, game.SetTurn(userID)...); err != nil {
		return err
	}

	c.emit("turn_chosen", userID, RoomContestants)
	c.publishState(ctx, game)
	return nil
}

// EditContestantInfo applies a presenter override and echoes it to the contestant.
func (c *Coordinator) EditContestantInfo(ctx context.Context, sid, userID string, raw json.RawMessage) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}
	var info ContestantInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return errors.Wrap(err, errors.ErrCodeValidation, "invalid contestant info")
	}

	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gc, err := requireContestant(game, userID)
	if err != nil {
		return err
	}

	if info.Hits != nil {
		gc.Hits = *info.Hits
	}
	if info.Misses != nil {
		gc.Misses = *info.Misses
	}
	if info.Score != nil {
		gc.Score = *info.Score
	}
	var powers []*models.GamePowerUp
	for name, used := range info.Powers {
		if power := gc.PowerUp(models.PowerUpKind(name)); power != nil {
			power.Used = used
			powers = append(powers, power)
		}
	}

	if err := c.store.SaveContestants(ctx, gc); err != nil {
		return err
	}
	if err := c.store.SavePowerUps(ctx, powers...); err != nil {
		return err
	}

	c.notifyContestant(userID, raw)
	c.publishState(ctx, game)
	return nil
}

// MarkQuestionActive flags the question the presenter picked.
func (c *Coordinator) MarkQuestionActive(ctx context.Context, sid, questionID string) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gq := game.GameQuestion(questionID)
	if gq == nil {
		return errors.New(errors.ErrCodeNotFound, "question "+questionID+" is not in the game")
	}
	if gq.Used {
		return errors.New(errors.ErrCodeConflict, "question "+questionID+" was already used")
	}

	changed := []*models.GameQuestion{gq}
	if previous := game.ActiveQuestion(); previous != nil && previous != gq {
		previous.Active = false
		changed = append(changed, previous)
	}
	gq.Active = true
	return c.store.SaveQuestions(ctx, changed...)
}
