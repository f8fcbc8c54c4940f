package narrative

import "fmt"

// ParseError means the service response carried no parseable payload.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string { return "parse: " + e.Reason }

// ValidationError means the payload parsed but failed the hard content
// rules (empty text, missing choices).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "validation: " + e.Reason }

// NetworkError means every attempt against the generation service failed.
// Surfaced to the UI for retry messaging.
type NetworkError struct {
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("generation failed after %d attempts: %v", e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
