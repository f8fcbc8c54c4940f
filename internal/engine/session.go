package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Session owns the game lifecycle: NoGame -> Setup -> Active -> GameOver.
// All mutation of GameState happens through it. The mutex guards against a
// double-triggered turn (the UI disables input during generation, but the
// state machine should not rely on that alone).
type Session struct {
	mu    sync.Mutex
	Setup GameSetup
	owner string
	tier  Tier
	game  *GameState
	now   func() time.Time
}

func NewSession(ownerID string, tier Tier) *Session {
	return &Session{
		Setup: NewSetup(),
		owner: ownerID,
		tier:  tier,
		now:   time.Now,
	}
}

func (s *Session) Tier() Tier { return s.tier }

// Game returns the active game state, or nil before StartNewGame.
func (s *Session) Game() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game
}

// Snapshot returns a deep copy of the active game taken under the session
// lock, or nil before StartNewGame. Persistence must work on snapshots:
// the live aggregate keeps mutating while background saves run.
func (s *Session) Snapshot() *GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return nil
	}
	return s.game.clone()
}

// Resume attaches a previously persisted game to the session.
func (s *Session) Resume(g *GameState) {
	s.mu.Lock()
	s.game = g
	s.mu.Unlock()
}

// CheckSetup reports whether StartNewGame would accept the current setup,
// without committing anything.
func (s *Session) CheckSetup() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if missing := s.Setup.missing(); len(missing) > 0 {
		return &SetupIncompleteError{Missing: missing}
	}
	return nil
}

// StartNewGame validates the completed setup and initializes a fresh game.
// The current game, if any, is left untouched on failure.
func (s *Session) StartNewGame() (*GameState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if missing := s.Setup.missing(); len(missing) > 0 {
		return nil, &SetupIncompleteError{Missing: missing}
	}
	g := &GameState{
		ID:         uuid.NewString(),
		OwnerID:    s.owner,
		Era:        s.Setup.Era,
		Theme:      s.Setup.Theme,
		Difficulty: s.Setup.Difficulty,
		Character:  NewCharacter(s.Setup.CharacterName),
		World:      DefaultWorldSystems(),
	}
	g.AddMemory(Memory{
		ID:          uuid.NewString(),
		Title:       "The story begins",
		Description: s.Setup.CharacterName + " sets out in " + s.Setup.Era + ".",
		Category:    MemoryEvent,
		CreatedAt:   s.now(),
	})
	s.game = g
	s.Setup = NewSetup()
	return g, nil
}

// CheckTurnLimit guards choice acceptance against the lifetime cap. It is
// independent of the daily AI-call quota; the two limits never substitute
// for each other's messaging.
func (s *Session) CheckTurnLimit() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return nil
	}
	if limit := TurnLimit(s.tier); s.game.TurnCount >= limit {
		return &TurnLimitError{Limit: limit, Tier: s.tier}
	}
	return nil
}

// ApplySegment commits one generated turn: the previous current segment is
// archived exactly once, the new segment becomes current, the turn counter
// advances and a memory of the action is recorded. The quota check must
// already have passed; the pipeline is invoked at most once per action, so
// no deduplication happens here.
func (s *Session) ApplySegment(seg Segment, action string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return &SetupIncompleteError{Missing: []string{"active game"}}
	}
	if s.game.CurrentSegment != nil {
		s.game.PastSegments = append(s.game.PastSegments, *s.game.CurrentSegment)
	}
	segCopy := seg
	s.game.CurrentSegment = &segCopy
	s.game.TurnCount++
	if action != "" {
		s.game.AddMemory(Memory{
			ID:          uuid.NewString(),
			Title:       "Chose: " + truncate(action, 60),
			Description: action,
			Category:    MemoryChoice,
			CreatedAt:   s.now(),
		})
	}
	return nil
}

// SetBackstory records the generated backstory on the active character.
func (s *Session) SetBackstory(backstory string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game != nil {
		s.game.Character.Backstory = backstory
	}
}

// EndGame moves to GameOver and clears the current segment. The persisted
// record remains loadable.
func (s *Session) EndGame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.game == nil {
		return
	}
	s.game.GameOver = true
	s.game.CurrentSegment = nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
