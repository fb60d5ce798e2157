package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"jeoparty/models"
	"jeoparty/store"
)

const (
	presenterID  = "host"
	presenterSID = "presenter-sid"
)

type emitted struct {
	event   string
	payload interface{}
	to      string
	skip    []string
}

// recordingEmitter keeps every emitted event and tracks room membership.
type recordingEmitter struct {
	mu     sync.Mutex
	events []emitted
	rooms  map[string]map[string]bool
}

func newRecordingEmitter() *recordingEmitter {
	return &recordingEmitter{rooms: make(map[string]map[string]bool)}
}

func (e *recordingEmitter) Emit(gameID, event string, payload interface{}, to string, skip ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emitted{event: event, payload: payload, to: to, skip: skip})
}

func (e *recordingEmitter) JoinRoom(gameID, sid, room string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rooms[sid] == nil {
		e.rooms[sid] = make(map[string]bool)
	}
	e.rooms[sid][room] = true
}

func (e *recordingEmitter) LeaveRoom(gameID, sid, room string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.rooms[sid], room)
}

func (e *recordingEmitter) InRoom(gameID, sid, room string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rooms[sid][room]
}

func (e *recordingEmitter) named(event string) []emitted {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emitted
	for _, ev := range e.events {
		if ev.event == event {
			out = append(out, ev)
		}
	}
	return out
}

func (e *recordingEmitter) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func noSleep(ctx context.Context, d time.Duration) error {
	return nil
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	store   *store.MemoryStore
	emitter *recordingEmitter
	clock   *fakeClock
	coord   *Coordinator
	game    *models.Game
	// ids and sids of the contestants, in join order
	ids  []string
	sids []string
}

type fixtureOption func(*models.Game)

func withDailyDoubles(g *models.Game) { g.UseDailyDoubles = true }

// testPack has two regular rounds of two categories with values 100 and 200,
// and a finale with a single question.
func testPack() *models.QuestionPack {
	round := func(n int) models.QuestionRound {
		r := models.QuestionRound{Name: fmt.Sprintf("Round %d", n)}
		for c := 1; c <= 2; c++ {
			cat := models.QuestionCategory{Name: fmt.Sprintf("R%dC%d", n, c), BuzzTime: 10}
			for _, v := range []int{100, 200} {
				cat.Questions = append(cat.Questions, models.Question{
					Question: fmt.Sprintf("R%dC%d %d", n, c, v),
					Answer:   "answer",
					Value:    v,
				})
			}
			r.Categories = append(r.Categories, cat)
		}
		return r
	}
	return &models.QuestionPack{
		Name:          "Test pack",
		IncludeFinale: true,
		CreatedBy:     presenterID,
		Rounds: []models.QuestionRound{
			round(1),
			round(2),
			{Name: "Finale", Categories: []models.QuestionCategory{{
				Name:      "Final category",
				Questions: []models.Question{{Question: "Final question", Answer: "final", Value: 0}},
			}}},
		},
	}
}

func newFixture(t *testing.T, contestants int, opts ...fixtureOption) *fixture {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	pack := testPack()
	require.NoError(t, st.CreatePack(ctx, pack))

	game := &models.Game{
		PackID:         pack.ID,
		Title:          "Test game",
		JoinCode:       "test_game",
		RegularRounds:  2,
		MaxContestants: 8,
		AnswerTime:     6,
		UsePowerUps:    true,
		Stage:          models.StageLobby,
		Round:          1,
		CreatedBy:      presenterID,
	}
	for _, opt := range opts {
		opt(game)
	}
	for r := range pack.Rounds {
		for c := range pack.Rounds[r].Categories {
			for q := range pack.Rounds[r].Categories[c].Questions {
				question := &pack.Rounds[r].Categories[c].Questions[q]
				game.GameQuestions = append(game.GameQuestions, models.GameQuestion{QuestionID: question.ID, Question: question})
			}
		}
	}
	require.NoError(t, st.CreateGame(ctx, game))

	clock := newFakeClock()
	emitter := newRecordingEmitter()
	f := &fixture{
		t:       t,
		ctx:     ctx,
		store:   st,
		emitter: emitter,
		clock:   clock,
		coord:   NewCoordinator(game.ID, st, emitter, WithClock(clock.Now), WithSleep(noSleep)),
	}

	names := []string{"Alice", "Bob", "Carol", "Dave"}
	for i := 0; i < contestants; i++ {
		contestant := &models.Contestant{Name: names[i], Color: "#ff0000"}
		require.NoError(t, st.SaveContestant(ctx, contestant))
		gc := &models.GameContestant{
			ID:           models.NewID(),
			GameID:       game.ID,
			ContestantID: contestant.ID,
			JoinedAt:     clock.Now().Add(time.Duration(i) * time.Second),
		}
		gc.PowerUps = models.NewPowerUps(game.ID, gc.ID)
		require.NoError(t, st.AddContestantToGame(ctx, gc))
		f.ids = append(f.ids, contestant.ID)
		f.sids = append(f.sids, fmt.Sprintf("sid-%d", i))
	}

	emitter.JoinRoom(game.ID, presenterSID, RoomPresenter)
	for i, id := range f.ids {
		emitter.JoinRoom(game.ID, f.sids[i], RoomContestants)
		require.NoError(t, f.coord.ContestantJoin(ctx, f.sids[i], id))
	}
	emitter.reset()

	f.game = f.reload()
	return f
}

func (f *fixture) reload() *models.Game {
	f.t.Helper()
	game, err := f.store.GetGame(f.ctx, f.coord.GameID())
	require.NoError(f.t, err)
	return game
}

func (f *fixture) contestant(i int) *models.GameContestant {
	f.t.Helper()
	gc := f.reload().Contestant(f.ids[i])
	require.NotNil(f.t, gc)
	return gc
}

// openQuestion starts the game if needed, activates the first unused question
// of the current round worth value (any value when zero) and enters the
// question stage.
func (f *fixture) openQuestion(value int) *models.GameQuestion {
	f.t.Helper()
	if f.reload().Stage == models.StageLobby {
		_, err := f.coord.EnterSelection(f.ctx, presenterID)
		require.NoError(f.t, err)
	}
	game := f.reload()
	var target *models.GameQuestion
	for _, q := range game.QuestionsForRound() {
		if !q.Used && (value == 0 || q.Question.Value == value) {
			target = q
			break
		}
	}
	require.NotNil(f.t, target, "no unused question left")
	require.NoError(f.t, f.coord.MarkQuestionActive(f.ctx, presenterSID, target.QuestionID))
	view, err := f.coord.EnterQuestion(f.ctx, presenterID)
	require.NoError(f.t, err)
	require.Empty(f.t, view.Redirect)
	return target
}

func (f *fixture) enableBuzz(ids ...string) {
	f.t.Helper()
	active := make(map[string]bool)
	for _, id := range ids {
		active[id] = true
	}
	require.NoError(f.t, f.coord.EnableBuzz(f.ctx, presenterSID, active))
}

// settlePing feeds ten identical round trips so the rolling mean equals ms.
func (f *fixture) settlePing(i int, ms float64) {
	f.t.Helper()
	for n := 0; n < pingSamples; n++ {
		require.NoError(f.t, f.coord.CalculatePing(f.ctx, f.sids[i], f.ids[i], 0, 2*ms))
	}
}

// gate blocks every arbitration wait until release is closed.
type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{entered: make(chan struct{}, 8), release: make(chan struct{})}
}

func (g *gate) sleep(ctx context.Context, d time.Duration) error {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("buzz arbitration never started")
	}
}

func mustJSON(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
