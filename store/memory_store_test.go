package store

import (
	"context"
	"testing"

	"jeoparty/models"
	"jeoparty/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedGame(t *testing.T, s *MemoryStore) *models.Game {
	t.Helper()
	ctx := context.Background()

	pack := &models.QuestionPack{
		Name: "Pack",
		Rounds: []models.QuestionRound{{
			Name: "Round 1",
			Categories: []models.QuestionCategory{{
				Name:      "Category",
				Questions: []models.Question{{Question: "Q1", Answer: "A1", Value: 100}, {Question: "Q2", Answer: "A2", Value: 200}},
			}},
		}},
	}
	require.NoError(t, s.CreatePack(ctx, pack))

	game := &models.Game{PackID: pack.ID, Title: "Test", JoinCode: "test", RegularRounds: 1, Round: 1, Stage: models.StageLobby, CreatedBy: "host"}
	for i := range pack.Rounds[0].Categories[0].Questions {
		q := &pack.Rounds[0].Categories[0].Questions[i]
		game.GameQuestions = append(game.GameQuestions, models.GameQuestion{QuestionID: q.ID, Question: q})
	}
	require.NoError(t, s.CreateGame(ctx, game))
	return game
}

func TestMemoryStoreReadsAreIsolated(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created := seedGame(t, s)

	first, err := s.GetGame(ctx, created.ID)
	require.NoError(t, err)
	first.Stage = models.StageSelection
	first.GameQuestions[0].Active = true

	second, err := s.GetGame(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageLobby, second.Stage)
	assert.False(t, second.GameQuestions[0].Active)

	require.NoError(t, s.SaveGame(ctx, first))
	require.NoError(t, s.SaveQuestions(ctx, &first.GameQuestions[0]))

	third, err := s.GetGame(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageSelection, third.Stage)
	assert.True(t, third.GameQuestions[0].Active)
	require.Len(t, third.GameQuestions, 2, "saving the game row must not drop questions")
	assert.Equal(t, 1, third.GameQuestions[0].Question.RoundNumber())
}

func TestMemoryStoreEndedAt(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created := seedGame(t, s)

	game, err := s.GetGame(ctx, created.ID)
	require.NoError(t, err)
	game.Stage = models.StageEnded
	require.NoError(t, s.SaveGame(ctx, game))

	reloaded, err := s.GetGame(ctx, created.ID)
	require.NoError(t, err)
	assert.NotNil(t, reloaded.EndedAt)
}

func TestMemoryStoreContestants(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created := seedGame(t, s)

	contestant := &models.Contestant{Name: "Ann", Color: "#ff0000"}
	require.NoError(t, s.SaveContestant(ctx, contestant))

	gc := &models.GameContestant{GameID: created.ID, ContestantID: contestant.ID}
	gc.ID = models.NewID()
	gc.PowerUps = models.NewPowerUps(created.ID, gc.ID)
	require.NoError(t, s.AddContestantToGame(ctx, gc))

	err := s.AddContestantToGame(ctx, &models.GameContestant{GameID: created.ID, ContestantID: contestant.ID})
	assert.True(t, errors.HasCode(err, errors.ErrCodeAlreadyExists))

	game, err := s.GetGame(ctx, created.ID)
	require.NoError(t, err)
	loaded := game.Contestant(contestant.ID)
	require.NotNil(t, loaded)
	assert.Equal(t, "Ann", loaded.Name())
	require.Len(t, loaded.PowerUps, 3)

	loaded.Score = 400
	wager := 200
	loaded.FinaleWager = &wager
	hijack := loaded.PowerUp(models.PowerUpHijack)
	hijack.Used = true
	require.NoError(t, s.SaveContestants(ctx, loaded))
	require.NoError(t, s.SavePowerUps(ctx, hijack))

	wager = 999
	reloaded, err := s.GetGame(ctx, created.ID)
	require.NoError(t, err)
	again := reloaded.Contestant(contestant.ID)
	assert.Equal(t, 400, again.Score)
	require.NotNil(t, again.FinaleWager)
	assert.Equal(t, 200, *again.FinaleWager)
	assert.True(t, again.PowerUp(models.PowerUpHijack).Used)
	assert.False(t, again.PowerUp(models.PowerUpFreeze).Used)
}

func TestMemoryStoreNotFound(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, err := s.GetGame(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	_, err = s.GetGameByJoinCode(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	_, err = s.GetContestant(ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestMemoryStoreJoinCodes(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	created := seedGame(t, s)

	count, err := s.CountOpenGamesWithJoinCode(ctx, "test")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	byCode, err := s.GetGameByJoinCode(ctx, "TEST")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byCode.ID)
}
