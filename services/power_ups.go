package services

import (
	"context"

	"jeoparty/models"
	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
)

func validKind(kind models.PowerUpKind) error {
	if !kind.Valid() {
		return errors.New(errors.ErrCodeValidation, "unknown power-up "+string(kind))
	}
	return nil
}

// targets returns the contestant named by userID, or every contestant when it is nil.
func targets(game *models.Game, userID *string) ([]*models.GameContestant, error) {
	if userID != nil {
		gc, err := requireContestant(game, *userID)
		if err != nil {
			return nil, err
		}
		return []*models.GameContestant{gc}, nil
	}
	all := make([]*models.GameContestant, 0, len(game.GameContestants))
	for i := range game.GameContestants {
		all = append(all, &game.GameContestants[i])
	}
	return all, nil
}

// EnablePowerUp lets the targeted contestants use kind. Contestants who already
// used it are left out.
func (c *Coordinator) EnablePowerUp(ctx context.Context, sid string, userID *string, kind models.PowerUpKind) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}
	if err := validKind(kind); err != nil {
		return err
	}

	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	contestants, err := targets(game, userID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.meta.powerUseDecided = false
	c.mu.Unlock()

	var changed []*models.GamePowerUp
	var skip []string
	for _, gc := range contestants {
		power := gc.PowerUp(kind)
		if power == nil {
			continue
		}
		if power.Used {
			if userID != nil {
				return nil
			}
			if sessionSID, ok := c.sessionSID(gc.ContestantID); ok {
				skip = append(skip, sessionSID)
			}
			continue
		}
		power.Enabled = true
		changed = append(changed, power)
	}

	if err := c.store.SavePowerUps(ctx, changed...); err != nil {
		return err
	}

	c.emitToTargets("power_up_enabled", kind, userID, skip)
	return nil
}

// DisablePowerUp turns off kind, or every kind when kind is nil, for the targets.
func (c *Coordinator) DisablePowerUp(ctx context.Context, sid string, userID *string, kind *models.PowerUpKind) error {
	if err := c.requireRoom(sid, RoomPresenter); err != nil {
		return err
	}

	kinds := models.PowerUpKinds
	if kind != nil {
		if err := validKind(*kind); err != nil {
			return err
		}
		kinds = []models.PowerUpKind{*kind}
	}

	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	contestants, err := targets(game, userID)
	if err != nil {
		return err
	}

	var changed []*models.GamePowerUp
	for _, gc := range contestants {
		for _, k := range kinds {
			if power := gc.PowerUp(k); power != nil && power.Enabled {
				power.Enabled = false
				changed = append(changed, power)
			}
		}
	}

	c.mu.Lock()
	c.meta.powerUseDecided = true
	c.mu.Unlock()

	if err := c.store.SavePowerUps(ctx, changed...); err != nil {
		return err
	}

	c.emitToTargets("power_ups_disabled", kinds, userID, nil)
	return nil
}

func (c *Coordinator) emitToTargets(event string, payload interface{}, userID *string, skip []string) {
	if userID == nil {
		c.emit(event, payload, RoomContestants, skip...)
		return
	}
	if sessionSID, ok := c.sessionSID(*userID); ok {
		c.emit(event, payload, sessionSID)
	}
}

// UsePowerUp spends kind for userID. Only the first eligible activation after
// the power-ups were enabled goes through.
func (c *Coordinator) UsePowerUp(ctx context.Context, sid, userID string, kind models.PowerUpKind) error {
	if err := c.requireRoom(sid, RoomContestants); err != nil {
		return err
	}
	if err := validKind(kind); err != nil {
		return err
	}

	used, err := c.spendPowerUp(ctx, userID, kind)
	if err != nil || !used {
		return err
	}

	c.recorder.RecordPowerUpUsed(string(kind))
	logger.Info("Power-up used", "game_id", c.gameID, "user_id", userID, "power", kind)

	if kind.DisablesBuzz() {
		c.emit("buzz_disabled", nil, RoomContestants, sid)
	}
	c.emit("power_ups_disabled", models.PowerUpKinds, RoomContestants)
	c.emit("power_up_used", []interface{}{userID, kind}, RoomPresenter)
	c.emit("power_up_used", kind, sid)
	return nil
}

func (c *Coordinator) spendPowerUp(ctx context.Context, userID string, kind models.PowerUpKind) (bool, error) {
	c.powerLock.Lock()
	defer c.powerLock.Unlock()

	game, err := c.loadGame(ctx)
	if err != nil {
		return false, err
	}
	gc, err := requireContestant(game, userID)
	if err != nil {
		return false, err
	}
	power := gc.PowerUp(kind)
	if power == nil {
		return false, nil
	}

	c.mu.Lock()
	if !c.powerEligible(game, userID, kind) {
		c.mu.Unlock()
		logger.Debug("Power-up not eligible", "game_id", c.gameID, "user_id", userID, "power", kind)
		return false, nil
	}
	if c.meta.powerUseDecided {
		c.mu.Unlock()
		return false, nil
	}
	c.meta.powerUseDecided = true
	c.mu.Unlock()

	if power.Used {
		return false, nil
	}
	power.Used = true
	power.Enabled = false
	if err := c.store.SavePowerUps(ctx, power); err != nil {
		return false, err
	}

	c.mu.Lock()
	switch kind {
	case models.PowerUpHijack:
		c.meta.question.hijacker = userID
	case models.PowerUpFreeze:
		c.meta.question.frozenBy = userID
	case models.PowerUpRewind:
		c.meta.question.lastWrong = ""
	}
	c.mu.Unlock()

	// A hijacker takes the turn away from whoever holds it.
	if kind == models.PowerUpHijack {
		if err := c.store.SaveContestants(ctx, game.SetTurn(userID)...); err != nil {
			return true, err
		}
		c.publishState(ctx, game)
	}
	return true, nil
}

// powerEligible checks the server-side preconditions of each power. Callers hold c.mu.
func (c *Coordinator) powerEligible(game *models.Game, userID string, kind models.PowerUpKind) bool {
	if game.Stage != models.StageQuestion {
		return false
	}
	q := c.meta.question
	switch kind {
	case models.PowerUpHijack:
		active := game.ActiveQuestion()
		return active != nil && !active.DailyDouble && !q.buzzReceived && q.hijacker == ""
	case models.PowerUpFreeze:
		return q.buzzWinner == userID && q.frozenBy == ""
	case models.PowerUpRewind:
		return q.lastWrong == userID
	}
	return false
}

// resetQuestionPowers disables every power-up and, when offerHijack is set,
// enables hijack for contestants who have not used it yet. It returns the rows
// that changed and the contestants offered a hijack.
func resetQuestionPowers(game *models.Game, offerHijack bool) ([]*models.GamePowerUp, []string) {
	var changed []*models.GamePowerUp
	var offered []string
	for i := range game.GameContestants {
		gc := &game.GameContestants[i]
		for j := range gc.PowerUps {
			power := &gc.PowerUps[j]
			enable := offerHijack && power.Kind == models.PowerUpHijack && !power.Used
			if enable {
				offered = append(offered, gc.ContestantID)
			}
			if power.Enabled != enable {
				power.Enabled = enable
				changed = append(changed, power)
			}
		}
	}
	return changed, offered
}
