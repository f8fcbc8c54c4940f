package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoGame means an operation that needs an active game ran before
// StartNewGame or Resume.
var ErrNoGame = errors.New("no active game")

// SetupIncompleteError reports missing required setup fields. Recoverable;
// the UI re-prompts for the named fields.
type SetupIncompleteError struct {
	Missing []string
}

func (e *SetupIncompleteError) Error() string {
	return fmt.Sprintf("setup incomplete: missing %s", strings.Join(e.Missing, ", "))
}

// TurnLimitError is the lifetime/session turn cap, surfaced with an upgrade
// prompt. Not the daily AI-call quota.
type TurnLimitError struct {
	Limit int
	Tier  Tier
}

func (e *TurnLimitError) Error() string {
	return fmt.Sprintf("turn limit of %d reached on %s tier", e.Limit, e.Tier)
}
