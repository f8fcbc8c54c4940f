package engine

import (
	"errors"
	"fmt"
	"testing"
)

func completedSession() *Session {
	s := NewSession("user-1", TierFree)
	s.Setup.Era = "1920s Prohibition Chicago"
	s.Setup.Theme = "noir mystery"
	s.Setup.CharacterName = "Vera Kowalski"
	return s
}

func segment(turn int) Segment {
	return Segment{
		ID:   SegmentID(turn),
		Text: "The rain keeps falling.",
		Choices: []Choice{
			{ID: "1", Text: "Follow the stranger"},
			{ID: "2", Text: "Return to the office"},
			{ID: "3", Text: "Call it a night"},
		},
		CustomAllowed: true,
	}
}

func TestStartNewGameRequiresSetup(t *testing.T) {
	cases := []struct {
		name            string
		era, theme, who string
		wantErr         bool
	}{
		{"all set", "era", "theme", "name", false},
		{"missing era", "", "theme", "name", true},
		{"missing theme", "era", "", "name", true},
		{"missing name", "era", "theme", "", true},
		{"all missing", "", "", "", true},
	}
	for _, tc := range cases {
		s := NewSession("u", TierFree)
		s.Setup.Era, s.Setup.Theme, s.Setup.CharacterName = tc.era, tc.theme, tc.who
		g, err := s.StartNewGame()
		if tc.wantErr {
			var incomplete *SetupIncompleteError
			if !errors.As(err, &incomplete) {
				t.Fatalf("%s: expected SetupIncompleteError, got %v", tc.name, err)
			}
			if s.Game() != nil {
				t.Fatalf("%s: current game changed on failed start", tc.name)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if g.TurnCount != 0 || g.CurrentSegment != nil || len(g.PastSegments) != 0 {
			t.Fatalf("%s: fresh game not empty: %+v", tc.name, g)
		}
	}
}

func TestApplySegmentArchivesExactlyOnce(t *testing.T) {
	s := completedSession()
	if _, err := s.StartNewGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	for turn := 1; turn <= 4; turn++ {
		before := s.Game().TurnCount
		if err := s.ApplySegment(segment(turn), "act"); err != nil {
			t.Fatalf("apply turn %d: %v", turn, err)
		}
		g := s.Game()
		if g.TurnCount != before+1 {
			t.Fatalf("turn %d: count %d, want %d", turn, g.TurnCount, before+1)
		}
		if got, want := len(g.PastSegments), g.TurnCount-1; got != want {
			t.Fatalf("turn %d: archived %d segments, want %d", turn, got, want)
		}
		if g.CurrentSegment == nil || g.CurrentSegment.ID != SegmentID(turn) {
			t.Fatalf("turn %d: current segment not the applied one", turn)
		}
	}
}

func TestTurnLimitFreeTier(t *testing.T) {
	s := completedSession()
	if _, err := s.StartNewGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Game().TurnCount = 50
	err := s.CheckTurnLimit()
	var limitErr *TurnLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected TurnLimitError at 50 turns, got %v", err)
	}
	if limitErr.Limit != 50 {
		t.Fatalf("limit = %d, want 50", limitErr.Limit)
	}
	if s.Game().TurnCount != 50 {
		t.Fatalf("turn count mutated by guard: %d", s.Game().TurnCount)
	}
}

func TestTurnLimitPaidTier(t *testing.T) {
	s := NewSession("u", TierPremium)
	s.Setup.Era, s.Setup.Theme, s.Setup.CharacterName = "a", "b", "c"
	if _, err := s.StartNewGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	s.Game().TurnCount = 50
	if err := s.CheckTurnLimit(); err != nil {
		t.Fatalf("premium tier blocked at 50 turns: %v", err)
	}
}

func TestMemoryCapMostRecentFirst(t *testing.T) {
	g := &GameState{}
	for i := 0; i < 25; i++ {
		g.AddMemory(Memory{ID: fmt.Sprintf("m%d", i), Title: fmt.Sprintf("m%d", i)})
	}
	if len(g.Memories) != MemoryCap {
		t.Fatalf("memories len = %d, want %d", len(g.Memories), MemoryCap)
	}
	if g.Memories[0].ID != "m24" {
		t.Fatalf("most recent first violated: head is %s", g.Memories[0].ID)
	}
	if g.Memories[MemoryCap-1].ID != "m5" {
		t.Fatalf("eviction order wrong: tail is %s", g.Memories[MemoryCap-1].ID)
	}
}

func TestEndGameClearsCurrentSegment(t *testing.T) {
	s := completedSession()
	if _, err := s.StartNewGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.ApplySegment(segment(1), ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	s.EndGame()
	g := s.Game()
	if !g.GameOver || g.CurrentSegment != nil {
		t.Fatalf("end game did not settle state: over=%v current=%v", g.GameOver, g.CurrentSegment)
	}
}

func TestSnapshotIsIndependentOfLiveState(t *testing.T) {
	s := completedSession()
	if s.Snapshot() != nil {
		t.Fatal("snapshot before StartNewGame should be nil")
	}
	if _, err := s.StartNewGame(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.ApplySegment(segment(1), ""); err != nil {
		t.Fatalf("apply: %v", err)
	}
	snap := s.Snapshot()

	if err := s.ApplySegment(segment(2), "press on"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	s.Game().AddMemory(Memory{ID: "m", Title: "late", Category: MemoryEvent})

	if snap.TurnCount != 1 {
		t.Fatalf("snapshot turn count = %d, want the state at capture time", snap.TurnCount)
	}
	if snap.CurrentSegment == nil || snap.CurrentSegment.ID != SegmentID(1) {
		t.Fatalf("snapshot segment = %v, want %s", snap.CurrentSegment, SegmentID(1))
	}
	for _, m := range snap.Memories {
		if m.ID == "m" {
			t.Fatal("later mutation leaked into the snapshot")
		}
	}
}

func TestSetupAdvanceAndRestart(t *testing.T) {
	setup := NewSetup()
	if err := setup.Advance(); err == nil {
		t.Fatal("advance with empty era should fail")
	}
	setup.Era = "post-war Vienna"
	if err := setup.Advance(); err != nil {
		t.Fatalf("advance era: %v", err)
	}
	setup.Theme = "espionage"
	if err := setup.Advance(); err != nil {
		t.Fatalf("advance theme: %v", err)
	}
	setup.CharacterName = "Harry"
	if err := setup.Advance(); err != nil {
		t.Fatalf("advance character: %v", err)
	}
	if setup.Step != StepComplete {
		t.Fatalf("step = %s, want complete", setup.Step)
	}
	setup.Restart(StepTheme)
	if setup.Theme != "" || setup.Era == "" {
		t.Fatalf("restart should clear only the theme: era=%q theme=%q", setup.Era, setup.Theme)
	}
}

func TestStatClampAndInventoryMerge(t *testing.T) {
	c := NewCharacter("Ada")
	c.AdjustStat(StatWits, 20)
	if c.Stats[StatWits] != 10 {
		t.Fatalf("stat not clamped high: %d", c.Stats[StatWits])
	}
	c.AdjustStat(StatWits, -99)
	if c.Stats[StatWits] != 0 {
		t.Fatalf("stat not clamped low: %d", c.Stats[StatWits])
	}
	c.AddItem(Item{ID: "rope", Name: "Rope", Qty: 1})
	c.AddItem(Item{ID: "rope", Name: "Rope", Qty: 2})
	if len(c.Inventory) != 1 || c.Inventory[0].Qty != 3 {
		t.Fatalf("inventory merge failed: %+v", c.Inventory)
	}
}
