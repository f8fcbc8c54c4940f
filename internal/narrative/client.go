package narrative

import "context"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry in a completion request.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Client is the narrow surface the pipeline needs from a generation
// backend. The response is opaque text; all structure is imposed by the
// parser.
type Client interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}
