package quota

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/fablegame/fable/internal/engine"
	"github.com/fablegame/fable/internal/telemetry"
)

type memorySource struct {
	records  map[string]Usage
	fetchErr error
	reports  int
}

func newMemorySource() *memorySource { return &memorySource{records: map[string]Usage{}} }

func (s *memorySource) Fetch(_ context.Context, userID string) (Usage, error) {
	if s.fetchErr != nil {
		return Usage{}, s.fetchErr
	}
	u, ok := s.records[userID]
	if !ok {
		return Usage{}, fmt.Errorf("no usage for %s", userID)
	}
	return u, nil
}

func (s *memorySource) Report(_ context.Context, u Usage) error {
	s.reports++
	s.records[u.UserID] = u
	return nil
}

func frozenGate(src Source, sink telemetry.Sink, at time.Time) *Gate {
	g := New(src, sink)
	g.now = func() time.Time { return at }
	return g
}

func TestTrackDeniesAtLimitWithoutIncrement(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	src := newMemorySource()
	src.records["u1"] = Usage{UserID: "u1", Tier: engine.TierFree, AICalls: 5, ResetTime: now.Add(6 * time.Hour)}
	rec := telemetry.NewRecorder()
	g := frozenGate(src, rec, now)

	allowed, err := g.Track(context.Background(), "u1", ActionAICall)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if allowed {
		t.Fatal("expected denial at dailyLimit=5, aiCalls=5")
	}
	if !rec.Has("limit_reached") {
		t.Fatalf("limit_reached alert not emitted: %v", rec.Entries())
	}
	if remaining, _ := g.Remaining(context.Background(), "u1", ActionAICall); remaining != 0 {
		t.Fatalf("counter moved on denial: remaining=%d", remaining)
	}
}

func TestTrackWarnsOneUnitBeforeLimit(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	src := newMemorySource()
	src.records["u1"] = Usage{UserID: "u1", Tier: engine.TierFree, AICalls: 2, ResetTime: now.Add(6 * time.Hour)}
	rec := telemetry.NewRecorder()
	g := frozenGate(src, rec, now)

	if ok, _ := g.Track(context.Background(), "u1", ActionAICall); !ok {
		t.Fatal("call 3 of 5 should be allowed")
	}
	if rec.Has("limit_warning") {
		t.Fatal("warning too early at 3 of 5")
	}
	if ok, _ := g.Track(context.Background(), "u1", ActionAICall); !ok {
		t.Fatal("call 4 of 5 should be allowed")
	}
	if !rec.Has("limit_warning") {
		t.Fatalf("no warning within one unit of the limit: %v", rec.Entries())
	}
}

func TestResetBoundaryAdvancesToNextUTCMidnight(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	src := newMemorySource()
	src.records["u1"] = Usage{
		UserID: "u1", Tier: engine.TierFree,
		AICalls: 5, Saves: 9, Features: 2,
		ResetTime: now.Add(-time.Hour), // already past
	}
	g := frozenGate(src, telemetry.Nop(), now)

	allowed, err := g.Track(context.Background(), "u1", ActionAICall)
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	if !allowed {
		t.Fatal("stale counters must reset before evaluation")
	}
	_, reset := g.Remaining(context.Background(), "u1", ActionAICall)
	want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if !reset.Equal(want) {
		t.Fatalf("resetTime = %v, want next UTC midnight %v", reset, want)
	}
	if !reset.After(now) {
		t.Fatal("resetTime must be strictly in the future")
	}
	if remaining, _ := g.Remaining(context.Background(), "u1", ActionAICall); remaining != 4 {
		t.Fatalf("after reset+one call remaining = %d, want 4", remaining)
	}
}

func TestRemainingCountsDownWithUse(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	src := newMemorySource()
	src.records["u1"] = Usage{UserID: "u1", Tier: engine.TierFree, AICalls: 2, ResetTime: now.Add(6 * time.Hour)}
	g := frozenGate(src, telemetry.Nop(), now)

	if remaining, _ := g.Remaining(context.Background(), "u1", ActionAICall); remaining != 3 {
		t.Fatalf("remaining = %d, want 3 with 2 of 5 spent", remaining)
	}
	if ok, _ := g.Track(context.Background(), "u1", ActionAICall); !ok {
		t.Fatal("call 3 of 5 should be allowed")
	}
	if remaining, _ := g.Remaining(context.Background(), "u1", ActionAICall); remaining != 2 {
		t.Fatalf("remaining = %d, want 2 after one more call", remaining)
	}
}

func TestRemainingAppliesResetWithoutTrack(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	src := newMemorySource()
	src.records["u1"] = Usage{
		UserID: "u1", Tier: engine.TierFree,
		AICalls: 5, Saves: 9,
		ResetTime: now.Add(-time.Hour), // already past
	}
	g := frozenGate(src, telemetry.Nop(), now)

	remaining, reset := g.Remaining(context.Background(), "u1", ActionAICall)
	if remaining != 5 {
		t.Fatalf("stale counters survived a read: remaining = %d, want 5", remaining)
	}
	want := time.Date(2026, 3, 11, 0, 0, 0, 0, time.UTC)
	if !reset.Equal(want) {
		t.Fatalf("resetTime = %v, want next UTC midnight %v", reset, want)
	}
}

func TestPaidTiersEffectivelyUnlimited(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	src := newMemorySource()
	src.records["u1"] = Usage{UserID: "u1", Tier: engine.TierMaster, AICalls: 100000, ResetTime: now.Add(time.Hour)}
	g := frozenGate(src, telemetry.Nop(), now)
	if ok, _ := g.Track(context.Background(), "u1", ActionAICall); !ok {
		t.Fatal("master tier should not be blocked")
	}
}

func TestUnreachableSourceFallsBackToFreeTier(t *testing.T) {
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	src := newMemorySource()
	src.fetchErr = fmt.Errorf("backend down")
	g := frozenGate(src, telemetry.Nop(), now)
	if ok, _ := g.Track(context.Background(), "ghost", ActionAICall); !ok {
		t.Fatal("source outage must not block calls")
	}
	remaining, _ := g.Remaining(context.Background(), "ghost", ActionAICall)
	if remaining != 4 {
		t.Fatalf("default free record expected: remaining = %d, want 4", remaining)
	}
}
