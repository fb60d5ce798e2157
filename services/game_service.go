package services

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"jeoparty/models"
	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
	"jeoparty/security"
	"jeoparty/store"
)

const (
	defaultMaxContestants = 8
	maxContestantsLimit   = 10
	defaultAnswerTime     = 6
	maxColorLen           = 16
)

type GameService struct {
	store    store.Store
	registry *Registry
	states   *StateCache
	baseURL  string
	now      func() time.Time
}

func NewGameService(st store.Store, registry *Registry, states *StateCache, baseURL string) *GameService {
	return &GameService{
		store:    st,
		registry: registry,
		states:   states,
		baseURL:  strings.TrimRight(baseURL, "/"),
		now:      time.Now,
	}
}

type CreateGameRequest struct {
	PackID          string  `json:"pack_id" binding:"required"`
	Title           string  `json:"title" binding:"required,max=64"`
	RegularRounds   int     `json:"regular_rounds"`
	MaxContestants  int     `json:"max_contestants"`
	AnswerTime      int     `json:"answer_time"`
	UseDailyDoubles *bool   `json:"use_daily_doubles"`
	UsePowerUps     *bool   `json:"use_powerups"`
	Password        *string `json:"password"`
}

type JoinGameRequest struct {
	JoinCode  string  `json:"join_code" binding:"required"`
	UserID    string  `json:"user_id"`
	Name      string  `json:"name" binding:"required"`
	Color     string  `json:"color" binding:"required"`
	Password  *string `json:"password"`
	Avatar    *string `json:"avatar"`
	BuzzSound *string `json:"buzz_sound"`
	BgImage   *string `json:"bg_image"`
}

type JoinResult struct {
	GameID string `json:"game_id"`
	UserID string `json:"user_id"`
}

type LobbyView struct {
	Game        *models.Game     `json:"game"`
	Contestants []ContestantView `json:"contestants"`
	JoinURL     string           `json:"join_url"`
}

var joinCodeSeparators = regexp.MustCompile(`[^a-z0-9]+`)

// JoinCodeFromTitle lower-cases title and collapses everything that is not a
// letter or digit into single underscores.
func JoinCodeFromTitle(title string) string {
	code := joinCodeSeparators.ReplaceAllString(strings.ToLower(title), "_")
	return strings.Trim(code, "_")
}

func (s *GameService) JoinURL(joinCode string) string {
	return s.baseURL + "/join/" + joinCode
}

// CreateGame clones every question of the pack into a new game in the lobby.
func (s *GameService) CreateGame(ctx context.Context, userID string, req *CreateGameRequest) (*models.Game, error) {
	pack, err := s.store.GetPack(ctx, req.PackID)
	if err != nil {
		return nil, err
	}
	if !pack.Public && pack.CreatedBy != userID {
		return nil, errors.New(errors.ErrCodeForbidden, "pack is not available to this user")
	}

	game := &models.Game{
		PackID:          pack.ID,
		Title:           strings.TrimSpace(req.Title),
		RegularRounds:   req.RegularRounds,
		MaxContestants:  req.MaxContestants,
		AnswerTime:      req.AnswerTime,
		UseDailyDoubles: req.UseDailyDoubles == nil || *req.UseDailyDoubles,
		UsePowerUps:     req.UsePowerUps == nil || *req.UsePowerUps,
		Stage:           models.StageLobby,
		Round:           1,
		CreatedBy:       userID,
		Pack:            pack,
	}
	if game.RegularRounds == 0 {
		game.RegularRounds = pack.RegularRounds()
	}
	if game.MaxContestants == 0 {
		game.MaxContestants = defaultMaxContestants
	}
	if game.AnswerTime == 0 {
		game.AnswerTime = defaultAnswerTime
	}
	if err := validateGame(game, pack); err != nil {
		return nil, err
	}

	game.JoinCode = JoinCodeFromTitle(game.Title)
	if game.JoinCode == "" {
		game.JoinCode = "game"
	}
	count, err := s.store.CountOpenGamesWithJoinCode(ctx, game.JoinCode)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		game.JoinCode = fmt.Sprintf("%s_%d", game.JoinCode, count)
	}

	if req.Password != nil && *req.Password != "" {
		hash, err := security.HashPassword(*req.Password)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to hash password")
		}
		game.Password = &hash
	}

	for r := range pack.Rounds {
		for c := range pack.Rounds[r].Categories {
			for q := range pack.Rounds[r].Categories[c].Questions {
				question := &pack.Rounds[r].Categories[c].Questions[q]
				game.GameQuestions = append(game.GameQuestions, models.GameQuestion{
					QuestionID: question.ID,
					Question:   question,
				})
			}
		}
	}

	if err := s.store.CreateGame(ctx, game); err != nil {
		return nil, err
	}
	logger.Info("Game created", "game_id", game.ID, "join_code", game.JoinCode, "pack_id", pack.ID, "created_by", userID)
	return game, nil
}

func validateGame(game *models.Game, pack *models.QuestionPack) error {
	if game.Title == "" {
		return errors.New(errors.ErrCodeValidation, "title is required")
	}
	if game.RegularRounds < 1 || game.RegularRounds > pack.RegularRounds() {
		return errors.New(errors.ErrCodeValidation, fmt.Sprintf("regular_rounds must be between 1 and %d", pack.RegularRounds()))
	}
	if game.MaxContestants < 1 || game.MaxContestants > maxContestantsLimit {
		return errors.New(errors.ErrCodeValidation, fmt.Sprintf("max_contestants must be between 1 and %d", maxContestantsLimit))
	}
	if game.AnswerTime < 1 {
		return errors.New(errors.ErrCodeValidation, "answer_time must be positive")
	}
	return nil
}

// Join adds a contestant to the game behind joinCode. A contestant who is
// already in the game is let through even when the lobby is full.
func (s *GameService) Join(ctx context.Context, req *JoinGameRequest) (*JoinResult, error) {
	game, err := s.store.GetGameByJoinCode(ctx, strings.TrimSpace(req.JoinCode))
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			return nil, errors.New(errors.ErrCodeNotFound, "Game does not exist")
		}
		return nil, err
	}
	if game.Password != nil {
		if req.Password == nil || !security.CheckPassword(*game.Password, *req.Password) {
			return nil, errors.New(errors.ErrCodeUnauthorized, "Wrong password")
		}
	}
	if game.Stage == models.StageEnded {
		return nil, errors.New(errors.ErrCodeValidation, "Game has already ended")
	}

	name := strings.TrimSpace(req.Name)
	if !security.ValidName(name) {
		return nil, errors.New(errors.ErrCodeValidation, "Name must be 2 to 16 letters, digits, spaces or _-.!?'")
	}
	color := strings.TrimSpace(req.Color)
	if color == "" || utf8.RuneCountInString(color) > maxColorLen {
		return nil, errors.New(errors.ErrCodeValidation, "Invalid color")
	}

	coordinator := s.registry.Get(game.ID)
	coordinator.joinLock.Lock()
	defer coordinator.joinLock.Unlock()

	// Reload so the capacity check sees joins that finished while we waited.
	game, err = s.store.GetGame(ctx, game.ID)
	if err != nil {
		return nil, err
	}

	contestant, err := s.contestantIdentity(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	contestant.Name = name
	contestant.Color = color
	if req.Avatar != nil {
		contestant.Avatar = req.Avatar
	}
	if req.BuzzSound != nil {
		contestant.BuzzSound = req.BuzzSound
	}
	if req.BgImage != nil {
		contestant.BgImage = req.BgImage
	}

	alreadyJoined := game.Contestant(contestant.ID) != nil
	if !alreadyJoined && len(game.GameContestants) >= game.MaxContestants {
		return nil, errors.New(errors.ErrCodeValidation, "Lobby is full")
	}
	if err := s.store.SaveContestant(ctx, contestant); err != nil {
		return nil, err
	}

	if !alreadyJoined {
		gc := &models.GameContestant{
			ID:           models.NewID(),
			GameID:       game.ID,
			ContestantID: contestant.ID,
			JoinedAt:     s.now().UTC(),
		}
		if game.UsePowerUps {
			gc.PowerUps = models.NewPowerUps(game.ID, gc.ID)
		}
		if err := s.store.AddContestantToGame(ctx, gc); err != nil {
			return nil, err
		}
		logger.Info("Contestant added to game", "game_id", game.ID, "user_id", contestant.ID, "name", name)
	}

	return &JoinResult{GameID: game.ID, UserID: contestant.ID}, nil
}

// contestantIdentity returns the stored contestant for userID, or a new one.
func (s *GameService) contestantIdentity(ctx context.Context, userID string) (*models.Contestant, error) {
	if userID == "" {
		return &models.Contestant{ID: models.NewID()}, nil
	}
	contestant, err := s.store.GetContestant(ctx, userID)
	if errors.HasCode(err, errors.ErrCodeNotFound) {
		return &models.Contestant{ID: userID}, nil
	}
	return contestant, err
}

// OwnedGame loads the game and checks that userID created it.
func (s *GameService) OwnedGame(ctx context.Context, gameID, userID string) (*models.Game, error) {
	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.CreatedBy != userID {
		return nil, errors.New(errors.ErrCodeForbidden, "unauthorized to control this game")
	}
	return game, nil
}

func (s *GameService) GameExists(ctx context.Context, gameID string) error {
	_, err := s.store.GetGame(ctx, gameID)
	return err
}

func (s *GameService) Lobby(ctx context.Context, gameID, userID string) (*LobbyView, error) {
	game, err := s.OwnedGame(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	return &LobbyView{
		Game:        game,
		Contestants: contestantViews(game),
		JoinURL:     s.JoinURL(game.JoinCode),
	}, nil
}

// GetState returns the cached snapshot of the game, or builds one from the store.
func (s *GameService) GetState(ctx context.Context, gameID string) (*GameState, error) {
	state, err := s.states.Load(ctx, gameID)
	if err != nil {
		logger.Warn("Failed to read cached game state", "game_id", gameID, "error", err)
	}
	if state != nil {
		return state, nil
	}

	game, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	state = NewGameState(game)
	if err := s.states.Store(ctx, state); err != nil {
		logger.Warn("Failed to store game state", "game_id", gameID, "error", err)
	}
	return state, nil
}

// Cheatsheet returns the full pack of the game, answers included.
func (s *GameService) Cheatsheet(ctx context.Context, gameID, userID string) (*models.QuestionPack, error) {
	game, err := s.OwnedGame(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}
	if game.Pack == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "pack not found")
	}
	return game.Pack, nil
}

var scoreboardHeader = []interface{}{"Name", "Score", "Hits", "Misses", "Buzzes", "Finale wager", "Finale answer"}

// ExportScoreboard renders the contestants, best score first, as an xlsx workbook.
func (s *GameService) ExportScoreboard(ctx context.Context, gameID, userID string) (*bytes.Buffer, error) {
	game, err := s.OwnedGame(ctx, gameID, userID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Scoreboard"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to name sheet")
	}
	if err := f.SetSheetRow(sheet, "A1", &scoreboardHeader); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to write header")
	}

	for i, gc := range game.SortedByScore() {
		var wager, answer interface{}
		if gc.FinaleWager != nil {
			wager = *gc.FinaleWager
		}
		if gc.FinaleAnswer != nil {
			answer = *gc.FinaleAnswer
		}
		row := []interface{}{gc.Name(), gc.Score, gc.Hits, gc.Misses, gc.Buzzes, wager, answer}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to address row")
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to write row")
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternalError, "failed to write workbook")
	}
	return buf, nil
}
