package game

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/fablegame/fable/internal/engine"
	"github.com/fablegame/fable/internal/gamesync"
	"github.com/fablegame/fable/internal/narrative"
	"github.com/fablegame/fable/internal/quota"
	"github.com/fablegame/fable/internal/store"
	"github.com/fablegame/fable/internal/telemetry"
)

// Service wires one player action through the full turn path:
// quota gate -> generation pipeline -> state machine -> durable save.
// The UI owns serialization of actions (input is disabled while a
// generation call is in flight); the session's own lock covers the rest.
type Service struct {
	session  *engine.Session
	gate     *quota.Gate
	pipeline *narrative.Pipeline
	saver    *gamesync.Saver
	sink     telemetry.Sink
	userID   string
	saves    sync.WaitGroup
}

func NewService(session *engine.Session, gate *quota.Gate, pipeline *narrative.Pipeline, saver *gamesync.Saver, sink telemetry.Sink, userID string) *Service {
	if sink == nil {
		sink = telemetry.Nop()
	}
	return &Service{
		session:  session,
		gate:     gate,
		pipeline: pipeline,
		saver:    saver,
		sink:     sink,
		userID:   userID,
	}
}

func (s *Service) Session() *engine.Session { return s.session }

// StartGame validates setup, spends one AI call and plays the opening
// segment. The quota check happens before any network call; denial leaves
// the game unstarted.
func (s *Service) StartGame(ctx context.Context) (*engine.GameState, error) {
	if err := s.session.CheckSetup(); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx); err != nil {
		return nil, err
	}
	g, err := s.session.StartNewGame()
	if err != nil {
		return nil, err
	}
	backstory, seg, err := s.pipeline.InitialStory(ctx, g)
	if err != nil {
		return nil, err
	}
	s.session.SetBackstory(backstory)
	if err := s.session.ApplySegment(seg, ""); err != nil {
		return nil, err
	}
	s.commit("")
	return g, nil
}

// Act plays one turn for the chosen or custom action. Guard order: the
// lifetime turn cap first, then the daily quota, each with its own error
// so the UI can message them distinctly.
func (s *Service) Act(ctx context.Context, action string) (*engine.GameState, error) {
	g := s.session.Game()
	if g == nil {
		return nil, engine.ErrNoGame
	}
	if err := s.session.CheckTurnLimit(); err != nil {
		return nil, err
	}
	if err := s.checkQuota(ctx); err != nil {
		return nil, err
	}
	seg, err := s.pipeline.NextSegment(ctx, g, action)
	if err != nil {
		return nil, err
	}
	if err := s.session.ApplySegment(seg, action); err != nil {
		return nil, err
	}
	s.commit(action)
	return g, nil
}

// EndGame settles the state machine and persists the final record.
func (s *Service) EndGame(ctx context.Context) {
	s.session.EndGame()
	s.commit("")
}

// Resume loads a persisted game into the session.
func (s *Service) Resume(ctx context.Context, gameID string) (*engine.GameState, error) {
	g, err := s.saver.Load(ctx, gameID)
	if err != nil || g == nil {
		return nil, err
	}
	s.session.Resume(g)
	return g, nil
}

func (s *Service) ListGames(ctx context.Context) ([]store.GameSummary, error) {
	return s.saver.List(ctx, s.userID)
}

func (s *Service) DeleteGame(ctx context.Context, gameID string) bool {
	return s.saver.Delete(ctx, gameID)
}

// Unsynced reports pending offline writes, for the UI's sync indicator.
func (s *Service) Unsynced() int { return s.saver.Pending() }

// Wait blocks until fire-and-forget saves settle. Shutdown and tests only.
func (s *Service) Wait() { s.saves.Wait() }

func (s *Service) checkQuota(ctx context.Context) error {
	allowed, err := s.gate.Track(ctx, s.userID, quota.ActionAICall)
	if err != nil {
		return err
	}
	if !allowed {
		_, reset := s.gate.Remaining(ctx, s.userID, quota.ActionAICall)
		return &quota.ExceededError{Action: quota.ActionAICall, ResetTime: reset}
	}
	return nil
}

// commit persists the committed turn without blocking gameplay. The
// snapshot is taken under the session lock before the goroutine spawns;
// the live aggregate is never touched off the gameplay path. Failures
// land on the saver's offline queue, never here.
func (s *Service) commit(action string) {
	snap := s.session.Snapshot()
	if snap == nil {
		return
	}
	var turn *store.TurnRecord
	if snap.CurrentSegment != nil {
		turn = &store.TurnRecord{
			GameID:  snap.ID,
			TurnNo:  snap.TurnCount,
			Action:  action,
			Segment: *snap.CurrentSegment,
		}
	}
	s.saves.Add(1)
	go func() {
		defer s.saves.Done()
		if !s.saver.Save(context.Background(), snap, turn) {
			s.sink.Event("save_deferred", zap.String("game", snap.ID), zap.Int("turn", snap.TurnCount))
		}
	}()
}
