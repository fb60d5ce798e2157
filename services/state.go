package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"jeoparty/models"
	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
)

type GameState struct {
	GameID           string            `json:"game_id"`
	Stage            models.Stage      `json:"stage"`
	Round            int               `json:"round"`
	TotalRounds      int               `json:"total_rounds"`
	ActiveQuestionID string            `json:"active_question_id,omitempty"`
	Contestants      []ContestantState `json:"contestants"`
}

type ContestantState struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Score   int    `json:"score"`
	Hits    int    `json:"hits"`
	Misses  int    `json:"misses"`
	Buzzes  int    `json:"buzzes"`
	HasTurn bool   `json:"has_turn"`
}

// NewGameState snapshots the scoreboard and stage of game.
func NewGameState(game *models.Game) *GameState {
	state := &GameState{
		GameID:      game.ID,
		Stage:       game.Stage,
		Round:       game.Round,
		TotalRounds: game.TotalRounds(),
		Contestants: make([]ContestantState, 0, len(game.GameContestants)),
	}
	if active := game.ActiveQuestion(); active != nil {
		state.ActiveQuestionID = active.QuestionID
	}
	for _, gc := range game.GameContestants {
		state.Contestants = append(state.Contestants, ContestantState{
			ID:      gc.ContestantID,
			Name:    gc.Name(),
			Score:   gc.Score,
			Hits:    gc.Hits,
			Misses:  gc.Misses,
			Buzzes:  gc.Buzzes,
			HasTurn: gc.HasTurn,
		})
	}
	return state
}

// StateCache keeps the latest GameState of each game in Redis. A nil client
// turns every call into a no-op.
type StateCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStateCache(client *redis.Client, ttl time.Duration) *StateCache {
	return &StateCache{redis: client, ttl: ttl}
}

func stateKey(gameID string) string {
	return "game:" + gameID
}

func (s *StateCache) Store(ctx context.Context, state *GameState) error {
	if s == nil || s.redis == nil {
		return nil
	}

	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to marshal game state")
	}
	if err := s.redis.Set(ctx, stateKey(state.GameID), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternalError, "failed to store game state")
	}

	logger.Debug("Stored game state", "game_id", state.GameID, "stage", state.Stage, "round", state.Round)
	return nil
}

// Load returns the cached state, or nil when there is none.
func (s *StateCache) Load(ctx context.Context, gameID string) (*GameState, error) {
	if s == nil || s.redis == nil {
		return nil, nil
	}

	data, err := s.redis.Get(ctx, stateKey(gameID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to read game state")
	}

	var state GameState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to unmarshal game state")
	}
	return &state, nil
}
