package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jeoparty/models"
)

func TestCorrectThenUndoRestoresContestant(t *testing.T) {
	f := newFixture(t, 2)
	f.openQuestion(200)
	before := f.contestant(0)

	require.NoError(t, f.coord.CorrectAnswer(f.ctx, presenterSID, f.ids[0], 200))
	mid := f.contestant(0)
	assert.Equal(t, 200, mid.Score)
	assert.Equal(t, 1, mid.Hits)
	assert.True(t, mid.HasTurn)

	require.NoError(t, f.coord.UndoAnswer(f.ctx, presenterSID, f.ids[0], -200))
	after := f.contestant(0)
	assert.Equal(t, before.Score, after.Score)
	assert.Equal(t, before.Hits, after.Hits)
	assert.Equal(t, before.Misses, after.Misses)

	disabled := f.emitter.named("buzz_disabled")
	require.NotEmpty(t, disabled)
	assert.Equal(t, []string{f.sids[0]}, disabled[len(disabled)-1].skip)
}

func TestWrongThenUndoRestoresContestant(t *testing.T) {
	f := newFixture(t, 2)
	f.openQuestion(100)

	require.NoError(t, f.coord.WrongAnswer(f.ctx, presenterSID, f.ids[1], 100))
	mid := f.contestant(1)
	assert.Equal(t, -100, mid.Score)
	assert.Equal(t, 1, mid.Misses)
	assert.False(t, mid.HasTurn)

	require.NoError(t, f.coord.UndoAnswer(f.ctx, presenterSID, f.ids[1], 100))
	after := f.contestant(1)
	assert.Equal(t, 0, after.Score)
	assert.Equal(t, 0, after.Misses)
}

func TestCorrectAnswerMovesTurn(t *testing.T) {
	f := newFixture(t, 3)
	require.NoError(t, f.coord.FirstTurn(f.ctx, presenterSID, f.ids[2]))
	assert.True(t, f.contestant(2).HasTurn)

	turns := f.emitter.named("turn_chosen")
	require.Len(t, turns, 1)
	assert.Equal(t, f.ids[2], turns[0].payload)

	f.openQuestion(100)
	require.NoError(t, f.coord.CorrectAnswer(f.ctx, presenterSID, f.ids[1], 100))

	holders := 0
	for _, gc := range f.reload().GameContestants {
		if gc.HasTurn {
			holders++
			assert.Equal(t, f.ids[1], gc.ContestantID)
		}
	}
	assert.Equal(t, 1, holders)
}

func TestScoringUnknownContestant(t *testing.T) {
	f := newFixture(t, 1)
	assert.Error(t, f.coord.CorrectAnswer(f.ctx, presenterSID, "ghost", 100))
	assert.Error(t, f.coord.FirstTurn(f.ctx, presenterSID, "ghost"))
}

func TestEditContestantInfo(t *testing.T) {
	f := newFixture(t, 2)
	raw := json.RawMessage(`{"score": 1200, "hits": 4, "powers": {"freeze": true}}`)

	require.NoError(t, f.coord.EditContestantInfo(f.ctx, presenterSID, f.ids[0], raw))

	gc := f.contestant(0)
	assert.Equal(t, 1200, gc.Score)
	assert.Equal(t, 4, gc.Hits)
	assert.Equal(t, 0, gc.Misses)
	assert.True(t, gc.PowerUp(models.PowerUpFreeze).Used)
	assert.False(t, gc.PowerUp(models.PowerUpHijack).Used)

	changed := f.emitter.named("contestant_info_changed")
	require.Len(t, changed, 1)
	assert.Equal(t, f.sids[0], changed[0].to)

	assert.Error(t, f.coord.EditContestantInfo(f.ctx, presenterSID, f.ids[0], json.RawMessage(`[1,2]`)))
}

func TestEnableAndDisablePowerUps(t *testing.T) {
	f := newFixture(t, 2)
	f.openQuestion(100)
	require.NoError(t, f.coord.UsePowerUp(f.ctx, f.sids[0], f.ids[0], models.PowerUpHijack))

	// Alice already spent her hijack and is left out of the broadcast.
	f.emitter.reset()
	require.NoError(t, f.coord.EnablePowerUp(f.ctx, presenterSID, nil, models.PowerUpHijack))
	enabled := f.emitter.named("power_up_enabled")
	require.Len(t, enabled, 1)
	assert.Equal(t, RoomContestants, enabled[0].to)
	assert.Equal(t, []string{f.sids[0]}, enabled[0].skip)
	assert.False(t, f.contestant(0).PowerUp(models.PowerUpHijack).Enabled)
	assert.True(t, f.contestant(1).PowerUp(models.PowerUpHijack).Enabled)

	freeze := models.PowerUpFreeze
	require.NoError(t, f.coord.EnablePowerUp(f.ctx, presenterSID, &f.ids[1], freeze))
	assert.True(t, f.contestant(1).PowerUp(freeze).Enabled)

	require.NoError(t, f.coord.DisablePowerUp(f.ctx, presenterSID, &f.ids[1], &freeze))
	assert.False(t, f.contestant(1).PowerUp(freeze).Enabled)
	assert.True(t, f.contestant(1).PowerUp(models.PowerUpHijack).Enabled)

	require.NoError(t, f.coord.DisablePowerUp(f.ctx, presenterSID, nil, nil))
	for _, power := range f.contestant(1).PowerUps {
		assert.False(t, power.Enabled, power.Kind)
	}
	disabled := f.emitter.named("power_ups_disabled")
	require.Len(t, disabled, 2)
	assert.Equal(t, models.PowerUpKinds, disabled[1].payload)

	assert.Error(t, f.coord.EnablePowerUp(f.ctx, presenterSID, nil, models.PowerUpKind("teleport")))
}

func TestDisabledPowerUpsBlockActivation(t *testing.T) {
	f := newFixture(t, 2)
	f.openQuestion(100)

	require.NoError(t, f.coord.DisablePowerUp(f.ctx, presenterSID, nil, nil))
	require.NoError(t, f.coord.UsePowerUp(f.ctx, f.sids[0], f.ids[0], models.PowerUpHijack))
	assert.False(t, f.contestant(0).PowerUp(models.PowerUpHijack).Used)
}

func TestPingRollingMean(t *testing.T) {
	session := &contestantSession{ping: defaultPing}
	session.addPingSample(40)
	assert.InDelta(t, 4.0, session.ping, 1e-9)

	for i := 0; i < 9; i++ {
		session.addPingSample(40)
	}
	assert.InDelta(t, 40.0, session.ping, 1e-9)
	assert.Len(t, session.samples, pingSamples-1)

	session.addPingSample(140)
	assert.InDelta(t, 50.0, session.ping, 1e-9)
}

func TestPingSamplesAreBounded(t *testing.T) {
	session := &contestantSession{ping: defaultPing}
	session.addPingSample(-500)
	assert.Zero(t, session.ping)

	for i := 0; i < pingSamples; i++ {
		session.addPingSample(1e12)
	}
	assert.InDelta(t, maxPingSample, session.ping, 1e-9)

	f := newFixture(t, 2)
	f.openQuestion(100)
	for n := 0; n < pingSamples; n++ {
		require.NoError(t, f.coord.CalculatePing(f.ctx, f.sids[0], f.ids[0], 0, 1e15))
	}
	assert.Equal(t, time.Second, f.coord.arbitrationWindow())

	f.enableBuzz(f.ids...)
	f.emitter.reset()
	require.NoError(t, f.coord.BuzzerPressed(f.ctx, f.sids[0], f.ids[0]))
	f.coord.mu.Lock()
	pressed := f.coord.meta.question.buzzWinner
	f.coord.mu.Unlock()
	assert.Equal(t, f.ids[0], pressed)
}

func TestCalculatePingReportsClampedValue(t *testing.T) {
	f := newFixture(t, 1)

	require.NoError(t, f.coord.CalculatePing(f.ctx, f.sids[0], f.ids[0], 1000, 1004))
	calculated := f.emitter.named("ping_calculated")
	require.Len(t, calculated, 1)
	assert.Equal(t, "1.0", calculated[0].payload)
	assert.Equal(t, f.sids[0], calculated[0].to)

	require.NoError(t, f.coord.PingRequest(f.ctx, f.sids[0], f.ids[0], 1234.5))
	responses := f.emitter.named("ping_response")
	require.Len(t, responses, 1)
	assert.Equal(t, []interface{}{f.ids[0], 1234.5}, responses[0].payload)

	assert.Error(t, f.coord.CalculatePing(f.ctx, f.sids[0], "ghost", 0, 10))
}

func TestMarkQuestionActiveKeepsSingleActive(t *testing.T) {
	f := newFixture(t, 1)
	game := f.reload()
	require.GreaterOrEqual(t, len(game.GameQuestions), 2)
	first, second := game.GameQuestions[0].QuestionID, game.GameQuestions[1].QuestionID

	require.NoError(t, f.coord.MarkQuestionActive(f.ctx, presenterSID, first))
	require.NoError(t, f.coord.MarkQuestionActive(f.ctx, presenterSID, second))

	var active []string
	for _, gq := range f.reload().GameQuestions {
		if gq.Active {
			active = append(active, gq.QuestionID)
		}
	}
	assert.Equal(t, []string{second}, active)
}

func TestEnablePowerUpReopensActivationForSpentTarget(t *testing.T) {
	f := newFixture(t, 2)
	f.openQuestion(100)
	require.NoError(t, f.coord.UsePowerUp(f.ctx, f.sids[0], f.ids[0], models.PowerUpHijack))

	require.NoError(t, f.coord.EnablePowerUp(f.ctx, presenterSID, &f.ids[0], models.PowerUpHijack))
	assert.False(t, f.contestant(0).PowerUp(models.PowerUpHijack).Enabled)

	f.coord.mu.Lock()
	decided := f.coord.meta.powerUseDecided
	f.coord.mu.Unlock()
	assert.False(t, decided)
}
