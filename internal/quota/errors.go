package quota

import (
	"fmt"
	"time"
)

// ExceededError is the hard daily-limit stop, surfaced with remaining-time
// messaging. Track itself returns a plain deny; callers wrap it in this
// when they need an error value to propagate.
type ExceededError struct {
	Action    Action
	ResetTime time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("daily %s limit reached, resets %s", e.Action, e.ResetTime.Format(time.RFC3339))
}
