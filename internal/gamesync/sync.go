package gamesync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fablegame/fable/internal/engine"
	"github.com/fablegame/fable/internal/store"
	"github.com/fablegame/fable/internal/telemetry"
)

// Remote is the store surface the sync layer needs. *store.GameRepo
// satisfies it; tests plug in an in-memory fake.
type Remote interface {
	SaveTurn(ctx context.Context, g *engine.GameState, turn *store.TurnRecord) error
	Get(ctx context.Context, id string) (*engine.GameState, error)
	RecentTurns(ctx context.Context, gameID string, n int) ([]store.TurnRecord, error)
	RecentMemoryBatches(ctx context.Context, gameID string, n int) ([][]engine.Memory, error)
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]store.GameSummary, error)
	Delete(ctx context.Context, gameID string) error
}

const (
	defaultCacheTTL   = 5 * time.Minute
	recentTurnWindow  = 10
	recentBatchWindow = 3
	listLimit         = 25
)

type cacheEntry struct {
	game    engine.GameState
	fetched time.Time
}

type saveRequest struct {
	game engine.GameState
	turn *store.TurnRecord
}

// Saver is the persistence and sync layer. Writes are best-effort: a failed
// save lands on the in-memory offline queue instead of reaching the caller,
// so a save failure never becomes a gameplay error. Last write wins; a
// single active device is assumed.
type Saver struct {
	mu     sync.Mutex
	remote Remote
	sink   telemetry.Sink
	cache  map[string]cacheEntry
	queue  []saveRequest
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Saver)

func WithCacheTTL(d time.Duration) Option {
	return func(s *Saver) { s.ttl = d }
}

func New(remote Remote, sink telemetry.Sink, opts ...Option) *Saver {
	if sink == nil {
		sink = telemetry.Nop()
	}
	s := &Saver{
		remote: remote,
		sink:   sink,
		cache:  map[string]cacheEntry{},
		ttl:    defaultCacheTTL,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Save batch-writes the aggregate plus the turn record. Returns whether the
// write reached the remote store; false means it was queued for retry, not
// lost. Never returns an error to the caller.
func (s *Saver) Save(ctx context.Context, g *engine.GameState, turn *store.TurnRecord) bool {
	snapshot := cloneState(g)
	snapshot.LastSaved = s.now()

	s.mu.Lock()
	s.cache[snapshot.ID] = cacheEntry{game: snapshot, fetched: s.now()}
	s.mu.Unlock()

	if err := s.remote.SaveTurn(ctx, &snapshot, turn); err != nil {
		s.sink.Warn("save failed, queued for retry",
			zap.String("game", snapshot.ID), zap.Int("turn", snapshot.TurnCount), zap.Error(err))
		s.mu.Lock()
		s.queue = append(s.queue, saveRequest{game: snapshot, turn: turn})
		s.mu.Unlock()
		return false
	}
	return true
}

// Load returns the game by id, from cache when fresh. A missing game is
// (nil, nil). The remote aggregate is authoritative; turn and memory
// subcollections fill in anything the aggregate document lacks.
func (s *Saver) Load(ctx context.Context, gameID string) (*engine.GameState, error) {
	s.mu.Lock()
	if entry, ok := s.cache[gameID]; ok && s.now().Sub(entry.fetched) < s.ttl {
		g := cloneState(&entry.game)
		s.mu.Unlock()
		return &g, nil
	}
	s.mu.Unlock()

	g, err := s.remote.Get(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if err := s.reconstruct(ctx, g); err != nil {
		// Subcollection reads are best-effort; the aggregate still plays.
		s.sink.Warn("partial reconstruction", zap.String("game", gameID), zap.Error(err))
	}
	s.mu.Lock()
	s.cache[gameID] = cacheEntry{game: cloneState(g), fetched: s.now()}
	s.mu.Unlock()
	return g, nil
}

func (s *Saver) reconstruct(ctx context.Context, g *engine.GameState) error {
	if len(g.PastSegments) == 0 && g.TurnCount > 1 {
		turns, err := s.remote.RecentTurns(ctx, g.ID, recentTurnWindow)
		if err != nil {
			return err
		}
		// newest first from the store; archive oldest first, skip the current turn
		for i := len(turns) - 1; i >= 0; i-- {
			if turns[i].TurnNo < g.TurnCount {
				g.PastSegments = append(g.PastSegments, turns[i].Segment)
			}
		}
	}
	if len(g.Memories) == 0 {
		batches, err := s.remote.RecentMemoryBatches(ctx, g.ID, recentBatchWindow)
		if err != nil {
			return err
		}
		if len(batches) > 0 {
			g.Memories = batches[0]
		}
	}
	return nil
}

// List returns the owner's games ordered by recency.
func (s *Saver) List(ctx context.Context, ownerID string) ([]store.GameSummary, error) {
	return s.remote.ListByOwner(ctx, ownerID, listLimit)
}

// Delete removes the remote record and drops the cache entry.
func (s *Saver) Delete(ctx context.Context, gameID string) bool {
	s.mu.Lock()
	delete(s.cache, gameID)
	s.mu.Unlock()
	if err := s.remote.Delete(ctx, gameID); err != nil {
		s.sink.Warn("delete failed", zap.String("game", gameID), zap.Error(err))
		return false
	}
	return true
}

// Pending reports the offline queue depth, for an unsynced indicator.
func (s *Saver) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Flush retries queued saves in FIFO order. A write that fails again is
// re-queued rather than dropped, order preserved. Returns how many writes
// reached the remote store.
func (s *Saver) Flush(ctx context.Context) int {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	flushed := 0
	var refailed []saveRequest
	for _, req := range pending {
		if err := s.remote.SaveTurn(ctx, &req.game, req.turn); err != nil {
			refailed = append(refailed, req)
			continue
		}
		flushed++
	}
	if len(refailed) > 0 {
		s.mu.Lock()
		// anything queued during the pass stays behind the refailed writes
		s.queue = append(refailed, s.queue...)
		s.mu.Unlock()
	}
	if flushed > 0 {
		s.sink.Event("offline_queue_flushed", zap.Int("writes", flushed), zap.Int("remaining", s.Pending()))
	}
	return flushed
}

// Run flushes on a periodic timer until the context ends. A reconnect
// signal can additionally call Flush directly.
func (s *Saver) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.Pending() > 0 {
				s.Flush(ctx)
			}
		}
	}
}

// cloneState deep-copies via JSON so cached and queued snapshots cannot
// alias the live aggregate.
func cloneState(g *engine.GameState) engine.GameState {
	data, err := json.Marshal(g)
	if err != nil {
		return *g
	}
	var out engine.GameState
	if err := json.Unmarshal(data, &out); err != nil {
		return *g
	}
	return out
}
