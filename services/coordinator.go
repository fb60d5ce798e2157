package services

import (
	"context"
	"sync"
	"time"

	"jeoparty/metrics"
	"jeoparty/models"
	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
	"jeoparty/store"
)

const (
	RoomPresenter   = "presenter"
	RoomContestants = "contestants"
)

// Emitter delivers outbound events. to is a room name or a socket id; skip
// lists socket ids that must not receive the event. Emit must not block.
type Emitter interface {
	Emit(gameID, event string, payload interface{}, to string, skip ...string)
	JoinRoom(gameID, sid, room string)
	LeaveRoom(gameID, sid, room string)
	InRoom(gameID, sid, room string) bool
}

// contestantSession is the per-contestant state that is never persisted.
type contestantSession struct {
	sid        string
	ping       float64
	samples    []float64
	latestBuzz time.Time
}

// questionState is scoped to the question currently on screen.
type questionState struct {
	questionID   string
	buzzReceived bool
	buzzWinner   string
	hijacker     string
	frozenBy     string
	lastWrong    string
	rewinder     string
	bonus        *awardedBonus
}

// awardedBonus remembers a hijack bonus so undoing the answer removes all of it.
type awardedBonus struct {
	userID string
	value  int
	award  int
}

type gameMetadata struct {
	buzzWinnerDecided bool
	powerUseDecided   bool
	questionAskedTime time.Time
	question          questionState
}

// Coordinator owns the live state of one game. Each inbound event reloads the
// game from the store, applies its change and persists the touched rows.
type Coordinator struct {
	gameID   string
	store    store.Store
	emitter  Emitter
	states   *StateCache
	recorder *metrics.Recorder
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	buzzLock  sync.Mutex
	powerLock sync.Mutex
	joinLock  sync.Mutex

	mu          sync.Mutex
	contestants map[string]*contestantSession
	order       []string
	meta        gameMetadata
}

type CoordinatorOption func(*Coordinator)

// WithClock replaces the wall clock used for buzz timestamps.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithSleep replaces the arbitration window wait.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) CoordinatorOption {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

func WithStateCache(states *StateCache) CoordinatorOption {
	return func(c *Coordinator) {
		c.states = states
	}
}

func WithRecorder(recorder *metrics.Recorder) CoordinatorOption {
	return func(c *Coordinator) {
		c.recorder = recorder
	}
}

func NewCoordinator(gameID string, st store.Store, emitter Emitter, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		gameID:      gameID,
		store:       st,
		emitter:     emitter,
		now:         time.Now,
		sleep:       sleepContext,
		contestants: make(map[string]*contestantSession),
		meta:        gameMetadata{buzzWinnerDecided: true},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) GameID() string {
	return c.gameID
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Coordinator) loadGame(ctx context.Context) (*models.Game, error) {
	return c.store.GetGame(ctx, c.gameID)
}

func (c *Coordinator) emit(event string, payload interface{}, to string, skip ...string) {
	c.emitter.Emit(c.gameID, event, payload, to, skip...)
}

func (c *Coordinator) requireRoom(sid, room string) error {
	if !c.emitter.InRoom(c.gameID, sid, room) {
		return errors.New(errors.ErrCodeForbidden, "socket is not in the "+room+" room")
	}
	return nil
}

// sessionSID returns the socket id of a connected contestant.
func (c *Coordinator) sessionSID(userID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.contestants[userID]
	if !ok {
		return "", false
	}
	return session.sid, true
}

// requireContestant looks up the game contestant for userID.
func requireContestant(game *models.Game, userID string) (*models.GameContestant, error) {
	gc := game.Contestant(userID)
	if gc == nil {
		return nil, errors.New(errors.ErrCodeNotFound, "contestant "+userID+" is not in the game")
	}
	return gc, nil
}

// resetQuestionState clears the question-scoped flags when a new question is shown.
func (c *Coordinator) resetQuestionState(questionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, session := range c.contestants {
		session.latestBuzz = time.Time{}
	}
	c.meta.buzzWinnerDecided = true
	c.meta.powerUseDecided = false
	c.meta.questionAskedTime = time.Time{}
	c.meta.question = questionState{questionID: questionID}
}

// publishState refreshes the cached snapshot. Cache failures are logged only.
func (c *Coordinator) publishState(ctx context.Context, game *models.Game) {
	if c.states == nil {
		return
	}
	if err := c.states.Store(ctx, NewGameState(game)); err != nil {
		logger.Warn("Failed to store game state", "game_id", c.gameID, "error", err)
	}
}

// PresenterJoin admits sid to the presenter room when userID created the game.
func (c *Coordinator) PresenterJoin(ctx context.Context, sid, userID string) error {
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	if game.CreatedBy != userID {
		return errors.New(errors.ErrCodeForbidden, "user "+userID+" is not the creator of the game")
	}

	c.emitter.JoinRoom(c.gameID, sid, RoomPresenter)
	logger.Info("Presenter joined", "game_id", c.gameID, "sid", sid)

	c.emit("presenter_joined", nil, sid)
	return nil
}

// ContestantJoin binds sid to a contestant of the game and announces them to the presenter.
func (c *Coordinator) ContestantJoin(ctx context.Context, sid, userID string) error {
	game, err := c.loadGame(ctx)
	if err != nil {
		return err
	}
	gc := game.Contestant(userID)
	if gc == nil {
		return errors.New(errors.ErrCodeForbidden, "user "+userID+" is not a contestant in the game")
	}

	c.mu.Lock()
	if _, known := c.contestants[userID]; !known {
		c.order = append(c.order, userID)
	}
	c.contestants[userID] = &contestantSession{sid: sid, ping: defaultPing}
	c.mu.Unlock()

	c.emitter.LeaveRoom(c.gameID, sid, RoomContestants)
	c.emitter.JoinRoom(c.gameID, sid, RoomContestants)
	logger.Info("Contestant joined", "game_id", c.gameID, "user_id", userID, "name", gc.Name(), "sid", sid)

	var avatar *string
	var name, color string
	if gc.Contestant != nil {
		name, color, avatar = gc.Contestant.Name, gc.Contestant.Color, gc.Contestant.Avatar
	}
	c.emit("contestant_joined", []interface{}{userID, name, avatar, color}, RoomPresenter)
	c.emit("contestant_joined", nil, sid)
	return nil
}
