package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"jeoparty/models"
	"jeoparty/pkg/errors"
)

// MemoryStore keeps every record in process memory. Reads return deep copies
// of games so callers get the same reload-per-event behaviour as the SQL store.
type MemoryStore struct {
	mu          sync.RWMutex
	packs       map[string]*models.QuestionPack
	games       map[string]*models.Game
	contestants map[string]*models.Contestant
	now         func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		packs:       make(map[string]*models.QuestionPack),
		games:       make(map[string]*models.Game),
		contestants: make(map[string]*models.Contestant),
		now:         time.Now,
	}
}

func (s *MemoryStore) GetGame(ctx context.Context, gameID string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	game, ok := s.games[gameID]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "game not found")
	}
	return s.cloneGame(game), nil
}

func (s *MemoryStore) GetGameByJoinCode(ctx context.Context, joinCode string) (*models.Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Game
	for _, game := range s.games {
		if !strings.EqualFold(game.JoinCode, joinCode) {
			continue
		}
		if found == nil || game.StartedAt.After(found.StartedAt) {
			found = game
		}
	}
	if found == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "game not found")
	}
	return s.cloneGame(found), nil
}

func (s *MemoryStore) CountOpenGamesWithJoinCode(ctx context.Context, joinCode string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, game := range s.games {
		if strings.HasPrefix(game.JoinCode, joinCode) && game.Stage != models.StageEnded {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) CreateGame(ctx context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if game.ID == "" {
		game.ID = models.NewID()
	}
	if game.StartedAt.IsZero() {
		game.StartedAt = s.now().UTC()
	}
	if game.Pack == nil {
		game.Pack = s.packs[game.PackID]
	}
	for i := range game.GameQuestions {
		game.GameQuestions[i].GameID = game.ID
	}

	stored := *game
	stored.GameQuestions = append([]models.GameQuestion(nil), game.GameQuestions...)
	stored.GameContestants = nil
	s.games[game.ID] = &stored
	return nil
}

func (s *MemoryStore) SaveGame(ctx context.Context, game *models.Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.games[game.ID]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "game not found")
	}
	if game.Stage == models.StageEnded && game.EndedAt == nil {
		ended := s.now().UTC()
		game.EndedAt = &ended
	}

	questions, contestants, pack := stored.GameQuestions, stored.GameContestants, stored.Pack
	*stored = *game
	stored.GameQuestions, stored.GameContestants, stored.Pack = questions, contestants, pack
	stored.UpdatedAt = s.now().UTC()
	return nil
}

func (s *MemoryStore) SaveQuestions(ctx context.Context, questions ...*models.GameQuestion) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range questions {
		game, ok := s.games[q.GameID]
		if !ok {
			return errors.New(errors.ErrCodeNotFound, "game not found")
		}
		stored := game.GameQuestion(q.QuestionID)
		if stored == nil {
			return errors.New(errors.ErrCodeNotFound, "question not found")
		}
		stored.Active, stored.Used, stored.DailyDouble = q.Active, q.Used, q.DailyDouble
	}
	return nil
}

func (s *MemoryStore) SaveContestants(ctx context.Context, contestants ...*models.GameContestant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, gc := range contestants {
		stored := s.findGameContestant(gc.GameID, gc.ID)
		if stored == nil {
			return errors.New(errors.ErrCodeNotFound, "contestant not found")
		}
		identity, powerUps := stored.Contestant, stored.PowerUps
		*stored = *gc
		stored.Contestant, stored.PowerUps = identity, powerUps
		stored.FinaleWager = copyInt(gc.FinaleWager)
		stored.FinaleAnswer = copyString(gc.FinaleAnswer)
	}
	return nil
}

func (s *MemoryStore) SavePowerUps(ctx context.Context, powerUps ...*models.GamePowerUp) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range powerUps {
		gc := s.findGameContestant(p.GameID, p.GameContestantID)
		if gc == nil {
			return errors.New(errors.ErrCodeNotFound, "contestant not found")
		}
		stored := gc.PowerUp(p.Kind)
		if stored == nil {
			gc.PowerUps = append(gc.PowerUps, *p)
			continue
		}
		stored.Enabled, stored.Used = p.Enabled, p.Used
	}
	return nil
}

func (s *MemoryStore) GetContestant(ctx context.Context, contestantID string) (*models.Contestant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contestant, ok := s.contestants[contestantID]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "contestant not found")
	}
	copied := *contestant
	return &copied, nil
}

func (s *MemoryStore) SaveContestant(ctx context.Context, contestant *models.Contestant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if contestant.ID == "" {
		contestant.ID = models.NewID()
	}
	now := s.now().UTC()
	if contestant.CreatedAt.IsZero() {
		contestant.CreatedAt = now
	}
	contestant.UpdatedAt = now
	copied := *contestant
	s.contestants[contestant.ID] = &copied
	return nil
}

func (s *MemoryStore) AddContestantToGame(ctx context.Context, gc *models.GameContestant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	game, ok := s.games[gc.GameID]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "game not found")
	}
	if game.Contestant(gc.ContestantID) != nil {
		return errors.New(errors.ErrCodeAlreadyExists, "contestant already in game")
	}
	if gc.ID == "" {
		gc.ID = models.NewID()
	}
	if gc.JoinedAt.IsZero() {
		gc.JoinedAt = s.now().UTC()
	}
	for i := range gc.PowerUps {
		gc.PowerUps[i].GameContestantID = gc.ID
	}

	stored := *gc
	stored.Contestant = nil
	stored.PowerUps = append([]models.GamePowerUp(nil), gc.PowerUps...)
	game.GameContestants = append(game.GameContestants, stored)
	sort.SliceStable(game.GameContestants, func(i, j int) bool {
		return game.GameContestants[i].JoinedAt.Before(game.GameContestants[j].JoinedAt)
	})
	return nil
}

func (s *MemoryStore) GetPack(ctx context.Context, packID string) (*models.QuestionPack, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pack, ok := s.packs[packID]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "pack not found")
	}
	return pack, nil
}

// CreatePack stores the pack tree. Packs are never mutated afterwards, so the
// same tree is shared by every game cloned from it.
func (s *MemoryStore) CreatePack(ctx context.Context, pack *models.QuestionPack) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pack.Link()
	if pack.CreatedAt.IsZero() {
		pack.CreatedAt = s.now().UTC()
	}
	s.packs[pack.ID] = pack
	return nil
}

func (s *MemoryStore) findGameContestant(gameID, id string) *models.GameContestant {
	game, ok := s.games[gameID]
	if !ok {
		return nil
	}
	for i := range game.GameContestants {
		if game.GameContestants[i].ID == id {
			return &game.GameContestants[i]
		}
	}
	return nil
}

// cloneGame copies every mutable row. Identities are copied from the
// contestant table so renames show up in later reads.
func (s *MemoryStore) cloneGame(game *models.Game) *models.Game {
	copied := *game
	copied.Password = copyString(game.Password)
	if game.EndedAt != nil {
		ended := *game.EndedAt
		copied.EndedAt = &ended
	}

	copied.GameQuestions = make([]models.GameQuestion, len(game.GameQuestions))
	copy(copied.GameQuestions, game.GameQuestions)

	copied.GameContestants = make([]models.GameContestant, len(game.GameContestants))
	for i, gc := range game.GameContestants {
		gc.FinaleWager = copyInt(gc.FinaleWager)
		gc.FinaleAnswer = copyString(gc.FinaleAnswer)
		gc.PowerUps = append([]models.GamePowerUp(nil), gc.PowerUps...)
		if identity, ok := s.contestants[gc.ContestantID]; ok {
			c := *identity
			gc.Contestant = &c
		}
		copied.GameContestants[i] = gc
	}
	return &copied
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyString(v *string) *string {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
