package narrative

import (
	"encoding/json"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Minimum narrative lengths. Falling short is a quality warning, not a
// rejection: truncated-but-valid output still reaches the player.
const (
	openingMinChars      = 1000
	continuationMinChars = 300
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type ChoicePayload struct {
	ID   string `json:"id"`
	Text string `json:"text" validate:"required"`
}

type SegmentPayload struct {
	Text    string          `json:"text" validate:"required"`
	Choices []ChoicePayload `json:"choices" validate:"required,min=1,dive"`
}

// InitialStory is the parsed shape of an opening-scene response.
type InitialStory struct {
	Backstory string         `json:"backstory" validate:"required"`
	Segment   SegmentPayload `json:"segment" validate:"required"`
}

// Continuation is the parsed shape of a next-segment response.
type Continuation struct {
	Text    string          `json:"text" validate:"required"`
	Choices []ChoicePayload `json:"choices" validate:"required,min=1,dive"`
}

// extractJSON defends against code fences and leading/trailing prose the
// service may wrap around the payload: strip fences, then slice from the
// first '{' to the last '}'.
func extractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", &ParseError{Reason: "no JSON object found in response"}
	}
	return s[start : end+1], nil
}

// ParseInitialStory validates raw service output into an InitialStory.
func ParseInitialStory(raw string) (InitialStory, error) {
	var out InitialStory
	payload, err := extractJSON(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return InitialStory{}, &ParseError{Reason: err.Error()}
	}
	if err := validate.Struct(out); err != nil {
		return InitialStory{}, &ValidationError{Reason: err.Error()}
	}
	return out, nil
}

// ParseContinuation validates raw service output into a Continuation.
func ParseContinuation(raw string) (Continuation, error) {
	var out Continuation
	payload, err := extractJSON(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return Continuation{}, &ParseError{Reason: err.Error()}
	}
	if err := validate.Struct(out); err != nil {
		return Continuation{}, &ValidationError{Reason: err.Error()}
	}
	return out, nil
}
