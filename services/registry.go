package services

import (
	"context"
	"sync"
	"time"

	"jeoparty/metrics"
	"jeoparty/pkg/errors"
	"jeoparty/pkg/logger"
	"jeoparty/store"
)

// Registry hands out the coordinator of each game, creating it on first use.
// Coordinators live for the lifetime of the process.
type Registry struct {
	store    store.Store
	emitter  Emitter
	recorder *metrics.Recorder
	opts     []CoordinatorOption

	mu           sync.Mutex
	coordinators map[string]*Coordinator
}

func NewRegistry(st store.Store, emitter Emitter, recorder *metrics.Recorder, opts ...CoordinatorOption) *Registry {
	return &Registry{
		store:        st,
		emitter:      emitter,
		recorder:     recorder,
		opts:         append([]CoordinatorOption{WithRecorder(recorder)}, opts...),
		coordinators: make(map[string]*Coordinator),
	}
}

func (r *Registry) Get(gameID string) *Coordinator {
	r.mu.Lock()
	defer r.mu.Unlock()

	coordinator, ok := r.coordinators[gameID]
	if !ok {
		coordinator = NewCoordinator(gameID, r.store, r.emitter, r.opts...)
		r.coordinators[gameID] = coordinator
		logger.Debug("Coordinator created", "game_id", gameID)
	}
	return coordinator
}

// Open returns the coordinator of a stored game. Unknown ids fail with
// NOT_FOUND and leave no coordinator behind.
func (r *Registry) Open(ctx context.Context, gameID string) (*Coordinator, error) {
	r.mu.Lock()
	coordinator, ok := r.coordinators[gameID]
	r.mu.Unlock()
	if ok {
		return coordinator, nil
	}
	if _, err := r.store.GetGame(ctx, gameID); err != nil {
		return nil, err
	}
	return r.Get(gameID), nil
}

// Len is the number of live coordinators.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.coordinators)
}

// Dispatch runs an inbound socket event on the game's coordinator. Rejected
// events are dropped without a reply.
func (r *Registry) Dispatch(ctx context.Context, gameID, sid string, msg Message) {
	start := time.Now()
	coordinator, err := r.Open(ctx, gameID)
	if err == nil {
		err = coordinator.HandleMessage(ctx, sid, msg)
	}

	result := metrics.ResultHandled
	switch {
	case err == nil:
	case errors.HasCode(err, errors.ErrCodeForbidden),
		errors.HasCode(err, errors.ErrCodeNotFound),
		errors.HasCode(err, errors.ErrCodeValidation),
		errors.HasCode(err, errors.ErrCodeConflict):
		result = metrics.ResultDropped
		logger.Warn("Event dropped", "game_id", gameID, "sid", sid, "event", msg.Type, "error", err)
	default:
		result = metrics.ResultFailed
		logger.Error("Event failed", "game_id", gameID, "sid", sid, "event", msg.Type, "error", err)
	}
	r.recorder.RecordEvent(msg.Type, result, time.Since(start))
}
