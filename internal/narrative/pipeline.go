package narrative

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/fablegame/fable/internal/engine"
	"github.com/fablegame/fable/internal/telemetry"
)

const (
	defaultRetries = 2
	defaultDelay   = time.Second
	defaultTimeout = 60 * time.Second
)

// Pipeline turns game context into committed-ready segments. It holds no
// game state of its own: callers check quota first, then apply the returned
// segment through the session.
//
// Failure policy: network exhaustion propagates as *NetworkError so the UI
// can offer a retry; malformed output falls back to deterministic local
// content and is reported through the sink. The two cases are never
// conflated.
type Pipeline struct {
	client  Client
	sink    telemetry.Sink
	retries int
	delay   time.Duration
	timeout time.Duration
	sleep   func(context.Context, time.Duration) error
}

type Option func(*Pipeline)

func WithRetry(retries int, delay time.Duration) Option {
	return func(p *Pipeline) { p.retries, p.delay = retries, delay }
}

func WithTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.timeout = d }
}

func New(client Client, sink telemetry.Sink, opts ...Option) *Pipeline {
	p := &Pipeline{
		client:  client,
		sink:    sink,
		retries: defaultRetries,
		delay:   defaultDelay,
		timeout: defaultTimeout,
		sleep:   sleepCtx,
	}
	if p.sink == nil {
		p.sink = telemetry.Nop()
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// InitialStory generates the backstory and opening segment for a fresh game.
func (p *Pipeline) InitialStory(ctx context.Context, g *engine.GameState) (string, engine.Segment, error) {
	msgs, err := buildInitialMessages(g)
	if err != nil {
		return "", engine.Segment{}, err
	}
	raw, err := p.complete(ctx, msgs)
	if err != nil {
		return "", engine.Segment{}, err
	}
	parsed, err := ParseInitialStory(raw)
	if err != nil {
		p.sink.Error("initial story unusable, serving fallback", err, zap.String("game", g.ID))
		backstory, draft := fallbackInitial(g)
		return backstory, p.finalize(g, draft), nil
	}
	if len(parsed.Segment.Text) < openingMinChars {
		p.sink.Warn("opening scene below target length", zap.Int("chars", len(parsed.Segment.Text)))
	}
	return parsed.Backstory, p.finalize(g, segmentDraft{Text: parsed.Segment.Text, Choices: toChoices(parsed.Segment.Choices)}), nil
}

// NextSegment generates the segment that answers the player's action.
func (p *Pipeline) NextSegment(ctx context.Context, g *engine.GameState, action string) (engine.Segment, error) {
	msgs, err := buildContinuationMessages(g, action)
	if err != nil {
		return engine.Segment{}, err
	}
	raw, err := p.complete(ctx, msgs)
	if err != nil {
		return engine.Segment{}, err
	}
	parsed, err := ParseContinuation(raw)
	if err != nil {
		p.sink.Error("continuation unusable, serving fallback", err, zap.String("game", g.ID), zap.Int("turn", g.TurnCount))
		return p.finalize(g, fallbackContinuation(g, action)), nil
	}
	if len(parsed.Text) < continuationMinChars {
		p.sink.Warn("continuation below target length", zap.Int("chars", len(parsed.Text)))
	}
	return p.finalize(g, segmentDraft{Text: parsed.Text, Choices: toChoices(parsed.Choices)}), nil
}

// segmentDraft is a segment before id assignment.
type segmentDraft struct {
	Text    string
	Choices []engine.Choice
}

// finalize stamps the id from the next turn number. Free-text input is
// accepted on every produced segment.
func (p *Pipeline) finalize(g *engine.GameState, draft segmentDraft) engine.Segment {
	return engine.Segment{
		ID:            engine.SegmentID(g.TurnCount + 1),
		Text:          draft.Text,
		Choices:       draft.Choices,
		CustomAllowed: true,
	}
}

func toChoices(payload []ChoicePayload) []engine.Choice {
	out := make([]engine.Choice, len(payload))
	for i, c := range payload {
		id := c.ID
		if id == "" {
			id = strconv.Itoa(i + 1)
		}
		out[i] = engine.Choice{ID: id, Text: c.Text}
	}
	return out
}

// complete runs one bounded attempt sequence: the initial call plus up to
// p.retries re-tries with a fixed delay, all under one overall timeout.
func (p *Pipeline) complete(ctx context.Context, msgs []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= p.retries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.delay); err != nil {
				break
			}
		}
		attempts++
		out, err := p.client.Complete(ctx, msgs)
		if err == nil {
			return out, nil
		}
		lastErr = err
		p.sink.Warn("generation attempt failed", zap.Int("attempt", attempts), zap.Error(err))
	}
	return "", &NetworkError{Attempts: attempts, Err: lastErr}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsNetworkError reports whether err is a generation transport failure, as
// opposed to malformed output.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
