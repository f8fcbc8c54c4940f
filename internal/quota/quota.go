package quota

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fablegame/fable/internal/engine"
	"github.com/fablegame/fable/internal/telemetry"
)

type Action string

const (
	ActionAICall  Action = "ai_call"
	ActionSave    Action = "save"
	ActionFeature Action = "feature"
)

// Usage is the per-user daily counter record. ResetTime always sits at the
// next UTC midnight relative to the last read.
type Usage struct {
	UserID     string      `json:"userId"`
	Tier       engine.Tier `json:"tier"`
	AICalls    int         `json:"aiCalls"`
	Saves      int         `json:"saves"`
	Features   int         `json:"features"`
	DailyLimit int         `json:"dailyLimit"`
	ResetTime  time.Time   `json:"resetTime"`
}

// Source is the remote quota/subscription backend. Eventually consistent;
// the gate caches optimistically and reports usage best-effort.
type Source interface {
	Fetch(ctx context.Context, userID string) (Usage, error)
	Report(ctx context.Context, u Usage) error
}

// Daily limits per tier and action. Paid tiers are effectively unlimited.
var tierLimits = map[engine.Tier]map[Action]int{
	engine.TierFree: {
		ActionAICall:  5,
		ActionSave:    200,
		ActionFeature: 100,
	},
}

func limitFor(tier engine.Tier, action Action) int {
	if limits, ok := tierLimits[tier]; ok {
		if n, ok := limits[action]; ok {
			return n
		}
	}
	return math.MaxInt
}

// Gate enforces daily per-user limits ahead of any quota-consuming call.
// Consulting it is a precondition of generation, not a side effect.
type Gate struct {
	mu     sync.Mutex
	source Source
	sink   telemetry.Sink
	cache  map[string]*Usage
	now    func() time.Time
}

func New(source Source, sink telemetry.Sink) *Gate {
	if sink == nil {
		sink = telemetry.Nop()
	}
	return &Gate{source: source, sink: sink, cache: map[string]*Usage{}, now: time.Now}
}

// Track answers whether the action may proceed, incrementing the relevant
// counter when it may. Denial is not an error; errors are reserved for the
// caller's own plumbing.
func (g *Gate) Track(ctx context.Context, userID string, action Action) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := g.usageLocked(ctx, userID)
	limit := limitFor(u.Tier, action)
	count := counterFor(u, action)
	if *count >= limit {
		g.sink.Event("limit_reached",
			zap.String("user", userID), zap.String("action", string(action)),
			zap.Time("resets", u.ResetTime))
		return false, nil
	}
	*count++
	if u.Tier == engine.TierFree && limit-*count <= 1 {
		g.sink.Event("limit_warning",
			zap.String("user", userID), zap.String("action", string(action)),
			zap.Int("remaining", limit-*count))
	}
	g.reportLocked(ctx, u)
	return true, nil
}

// Remaining reports how many actions are left today, for UI messaging.
func (g *Gate) Remaining(ctx context.Context, userID string, action Action) (int, time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	u := g.usageLocked(ctx, userID)
	left := limitFor(u.Tier, action) - *counterFor(u, action)
	if left < 0 {
		left = 0
	}
	return left, u.ResetTime
}

// usageLocked returns the cached record, fetching on first sight, with the
// daily rollover already applied: counters reset on read past ResetTime,
// whichever path does the reading. An unreachable source yields a default
// free-tier record: availability wins over strict accounting for this
// non-critical metric.
func (g *Gate) usageLocked(ctx context.Context, userID string) *Usage {
	u, ok := g.cache[userID]
	if !ok {
		fetched, err := g.source.Fetch(ctx, userID)
		if err != nil {
			g.sink.Warn("usage source unreachable, assuming free tier", zap.String("user", userID), zap.Error(err))
			fetched = defaultUsage(userID, g.now())
		}
		if fetched.Tier == "" {
			fetched.Tier = engine.TierFree
		}
		if fetched.ResetTime.IsZero() {
			fetched.ResetTime = nextReset(g.now())
		}
		fetched.DailyLimit = limitFor(fetched.Tier, ActionAICall)
		u = &fetched
		g.cache[userID] = u
	}
	if now := g.now(); !now.Before(u.ResetTime) {
		u.AICalls, u.Saves, u.Features = 0, 0, 0
		u.ResetTime = nextReset(now)
	}
	return u
}

func (g *Gate) reportLocked(ctx context.Context, u *Usage) {
	if err := g.source.Report(ctx, *u); err != nil {
		g.sink.Warn("usage report failed", zap.String("user", u.UserID), zap.Error(err))
	}
}

func counterFor(u *Usage, action Action) *int {
	switch action {
	case ActionSave:
		return &u.Saves
	case ActionFeature:
		return &u.Features
	default:
		return &u.AICalls
	}
}

func defaultUsage(userID string, now time.Time) Usage {
	return Usage{
		UserID:     userID,
		Tier:       engine.TierFree,
		DailyLimit: limitFor(engine.TierFree, ActionAICall),
		ResetTime:  nextReset(now),
	}
}

// nextReset is the next UTC midnight strictly after now.
func nextReset(now time.Time) time.Time {
	utc := now.UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day()+1, 0, 0, 0, 0, time.UTC)
}
