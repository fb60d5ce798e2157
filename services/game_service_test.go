package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"jeoparty/models"
	"jeoparty/pkg/errors"
	"jeoparty/store"
)

type serviceFixture struct {
	ctx      context.Context
	store    *store.MemoryStore
	registry *Registry
	games    *GameService
	pack     *models.QuestionPack
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	pack := testPack()
	require.NoError(t, st.CreatePack(ctx, pack))

	registry := NewRegistry(st, newRecordingEmitter(), nil)
	return &serviceFixture{
		ctx:      ctx,
		store:    st,
		registry: registry,
		games:    NewGameService(st, registry, NewStateCache(nil, 0), "http://quiz.local/"),
		pack:     pack,
	}
}

func (s *serviceFixture) create(t *testing.T, req *CreateGameRequest) *models.Game {
	t.Helper()
	if req.PackID == "" {
		req.PackID = s.pack.ID
	}
	game, err := s.games.CreateGame(s.ctx, presenterID, req)
	require.NoError(t, err)
	return game
}

func TestJoinCodeFromTitle(t *testing.T) {
	assert.Equal(t, "friday_night_quiz", JoinCodeFromTitle("Friday Night Quiz!"))
	assert.Equal(t, "a_b", JoinCodeFromTitle("  --A & B--  "))
	assert.Equal(t, "", JoinCodeFromTitle("!!!"))
}

func TestCreateGameDefaults(t *testing.T) {
	s := newServiceFixture(t)
	game := s.create(t, &CreateGameRequest{Title: "Friday Quiz"})

	assert.Equal(t, "friday_quiz", game.JoinCode)
	assert.Equal(t, 2, game.RegularRounds)
	assert.Equal(t, defaultMaxContestants, game.MaxContestants)
	assert.Equal(t, defaultAnswerTime, game.AnswerTime)
	assert.True(t, game.UseDailyDoubles)
	assert.True(t, game.UsePowerUps)
	assert.Equal(t, models.StageLobby, game.Stage)
	assert.Nil(t, game.Password)

	stored, err := s.store.GetGame(s.ctx, game.ID)
	require.NoError(t, err)
	assert.Len(t, stored.GameQuestions, 9)
	assert.Equal(t, "http://quiz.local/join/friday_quiz", s.games.JoinURL(game.JoinCode))
}

func TestCreateGameSuffixesTakenJoinCode(t *testing.T) {
	s := newServiceFixture(t)
	first := s.create(t, &CreateGameRequest{Title: "Quiz"})
	second := s.create(t, &CreateGameRequest{Title: "Quiz"})

	assert.Equal(t, "quiz", first.JoinCode)
	assert.Equal(t, "quiz_1", second.JoinCode)
}

func TestCreateGameValidation(t *testing.T) {
	s := newServiceFixture(t)
	off := false

	game := s.create(t, &CreateGameRequest{Title: "No extras", UseDailyDoubles: &off, UsePowerUps: &off, RegularRounds: 1})
	assert.False(t, game.UseDailyDoubles)
	assert.False(t, game.UsePowerUps)
	assert.Equal(t, 1, game.RegularRounds)

	tests := []struct {
		name string
		req  CreateGameRequest
	}{
		{"too many rounds", CreateGameRequest{Title: "x", RegularRounds: 3}},
		{"too many contestants", CreateGameRequest{Title: "x", MaxContestants: 11}},
		{"negative answer time", CreateGameRequest{Title: "x", AnswerTime: -1}},
		{"blank title", CreateGameRequest{Title: "   "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.PackID = s.pack.ID
			_, err := s.games.CreateGame(s.ctx, presenterID, &tt.req)
			assert.True(t, errors.HasCode(err, errors.ErrCodeValidation), "got %v", err)
		})
	}
}

func TestCreateGameRequiresVisiblePack(t *testing.T) {
	s := newServiceFixture(t)

	_, err := s.games.CreateGame(s.ctx, "someone-else", &CreateGameRequest{PackID: s.pack.ID, Title: "Quiz"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	_, err = s.games.CreateGame(s.ctx, presenterID, &CreateGameRequest{PackID: "missing", Title: "Quiz"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestJoinGame(t *testing.T) {
	s := newServiceFixture(t)
	game := s.create(t, &CreateGameRequest{Title: "Quiz"})

	result, err := s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "QUIZ", Name: "Alice", Color: "#ff0000"})
	require.NoError(t, err)
	assert.Equal(t, game.ID, result.GameID)
	assert.NotEmpty(t, result.UserID)

	stored, err := s.store.GetGame(s.ctx, game.ID)
	require.NoError(t, err)
	gc := stored.Contestant(result.UserID)
	require.NotNil(t, gc)
	assert.Equal(t, "Alice", gc.Name())
	assert.Len(t, gc.PowerUps, len(models.PowerUpKinds))

	// Joining again with the same identity updates it in place.
	again, err := s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "quiz", UserID: result.UserID, Name: "Alicia", Color: "#00ff00"})
	require.NoError(t, err)
	assert.Equal(t, result.UserID, again.UserID)

	stored, err = s.store.GetGame(s.ctx, game.ID)
	require.NoError(t, err)
	require.Len(t, stored.GameContestants, 1)
	assert.Equal(t, "Alicia", stored.GameContestants[0].Name())
	assert.Equal(t, "#00ff00", stored.GameContestants[0].Contestant.Color)
}

func TestJoinGameRejections(t *testing.T) {
	s := newServiceFixture(t)
	secret := "hunter22"
	s.create(t, &CreateGameRequest{Title: "Locked", Password: &secret})
	s.create(t, &CreateGameRequest{Title: "Tiny", MaxContestants: 1})

	_, err := s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "nope", Name: "Alice", Color: "red"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	assert.Equal(t, "Game does not exist", errors.Message(err))

	wrong := "guess"
	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "locked", Name: "Alice", Color: "red", Password: &wrong})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "locked", Name: "Alice", Color: "red"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "locked", Name: "Alice", Color: "red", Password: &secret})
	assert.NoError(t, err)

	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "tiny", Name: "A", Color: "red"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "tiny", Name: "Alice", Color: ""})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	first, err := s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "tiny", Name: "Alice", Color: "red"})
	require.NoError(t, err)
	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "tiny", Name: "Bob", Color: "blue"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))
	assert.Equal(t, "Lobby is full", errors.Message(err))

	// Already joined contestants can still come back.
	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "tiny", UserID: first.UserID, Name: "Alice", Color: "red"})
	assert.NoError(t, err)
}

func TestConcurrentJoinsRespectCapacity(t *testing.T) {
	s := newServiceFixture(t)
	game := s.create(t, &CreateGameRequest{Title: "Crowded", MaxContestants: 3})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "crowded", Name: fmt.Sprintf("Player %d", i), Color: "red"})
		}(i)
	}
	wg.Wait()

	stored, err := s.store.GetGame(s.ctx, game.ID)
	require.NoError(t, err)
	assert.Len(t, stored.GameContestants, 3)
}

func TestLobbyAndOwnership(t *testing.T) {
	s := newServiceFixture(t)
	game := s.create(t, &CreateGameRequest{Title: "Quiz"})
	_, err := s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "quiz", Name: "Alice", Color: "red"})
	require.NoError(t, err)

	lobby, err := s.games.Lobby(s.ctx, game.ID, presenterID)
	require.NoError(t, err)
	assert.Equal(t, "http://quiz.local/join/quiz", lobby.JoinURL)
	require.Len(t, lobby.Contestants, 1)
	assert.Equal(t, "Alice", lobby.Contestants[0].Name)

	_, err = s.games.Lobby(s.ctx, game.ID, "someone-else")
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	pack, err := s.games.Cheatsheet(s.ctx, game.ID, presenterID)
	require.NoError(t, err)
	assert.Equal(t, s.pack.ID, pack.ID)

	assert.NoError(t, s.games.GameExists(s.ctx, game.ID))
	assert.Error(t, s.games.GameExists(s.ctx, "missing"))
}

func TestGetStateFallsBackToStore(t *testing.T) {
	s := newServiceFixture(t)
	game := s.create(t, &CreateGameRequest{Title: "Quiz"})

	state, err := s.games.GetState(s.ctx, game.ID)
	require.NoError(t, err)
	assert.Equal(t, game.ID, state.GameID)
	assert.Equal(t, models.StageLobby, state.Stage)
	assert.Equal(t, 3, state.TotalRounds)

	_, err = s.games.GetState(s.ctx, "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestExportScoreboard(t *testing.T) {
	s := newServiceFixture(t)
	game := s.create(t, &CreateGameRequest{Title: "Quiz"})
	alice, err := s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "quiz", Name: "Alice", Color: "red"})
	require.NoError(t, err)
	_, err = s.games.Join(s.ctx, &JoinGameRequest{JoinCode: "quiz", Name: "Bob", Color: "blue"})
	require.NoError(t, err)

	stored, err := s.store.GetGame(s.ctx, game.ID)
	require.NoError(t, err)
	gc := stored.Contestant(alice.UserID)
	gc.Score = 700
	require.NoError(t, s.store.SaveContestants(s.ctx, gc))

	buf, err := s.games.ExportScoreboard(s.ctx, game.ID, presenterID)
	require.NoError(t, err)

	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Scoreboard")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, []string{"Alice", "700", "0", "0", "0"}, rows[1])
	assert.Equal(t, "Bob", rows[2][0])

	_, err = s.games.ExportScoreboard(s.ctx, game.ID, "someone-else")
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))
}
