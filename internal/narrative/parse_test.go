package narrative

import (
	"errors"
	"reflect"
	"testing"
)

const validContinuation = `{"text": "The door gives way.", "choices": [
	{"id": "1", "text": "Step inside"},
	{"id": "2", "text": "Wait and listen"},
	{"id": "3", "text": "Walk away"}
]}`

func TestParseContinuationStripsFencesAndProse(t *testing.T) {
	wrapped := []string{
		validContinuation,
		"```json\n" + validContinuation + "\n```",
		"```\n" + validContinuation + "\n```",
		"Sure! Here is the next scene:\n" + validContinuation + "\nHope you enjoy it.",
	}
	for i, raw := range wrapped {
		got, err := ParseContinuation(raw)
		if err != nil {
			t.Fatalf("case %d: %v", i, err)
		}
		if got.Text != "The door gives way." || len(got.Choices) != 3 {
			t.Fatalf("case %d: unexpected parse %+v", i, got)
		}
	}
}

func TestParseIdempotence(t *testing.T) {
	a, err := ParseContinuation(validContinuation)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	b, err := ParseContinuation(validContinuation)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("parses differ: %+v vs %+v", a, b)
	}
}

func TestParseContinuationRejections(t *testing.T) {
	cases := []struct {
		name      string
		raw       string
		wantParse bool
		wantValid bool
	}{
		{"no json", "the model rambled with no payload", true, false},
		{"broken json", `{"text": "x", "choices": [`, true, false},
		{"empty text", `{"text": "", "choices": [{"id":"1","text":"a"}]}`, false, true},
		{"no choices", `{"text": "scene", "choices": []}`, false, true},
		{"empty choice text", `{"text": "scene", "choices": [{"id":"1","text":""}]}`, false, true},
	}
	for _, tc := range cases {
		_, err := ParseContinuation(tc.raw)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		var pe *ParseError
		var ve *ValidationError
		if tc.wantParse && !errors.As(err, &pe) {
			t.Fatalf("%s: expected ParseError, got %v", tc.name, err)
		}
		if tc.wantValid && !errors.As(err, &ve) {
			t.Fatalf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
}

func TestParseInitialStory(t *testing.T) {
	raw := `{"backstory": "Born at sea.", "segment": {"text": "Waves crash.", "choices": [
		{"id": "1", "text": "Go below deck"}, {"id": "2", "text": "Man the wheel"}, {"id": "3", "text": "Shout for help"}
	]}}`
	got, err := ParseInitialStory(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got.Backstory != "Born at sea." || len(got.Segment.Choices) != 3 {
		t.Fatalf("unexpected parse %+v", got)
	}
	if _, err := ParseInitialStory(`{"backstory": "", "segment": {"text": "x", "choices": [{"text":"a"}]}}`); err == nil {
		t.Fatal("empty backstory should be rejected")
	}
}

func TestRealismTierThresholds(t *testing.T) {
	cases := []struct {
		dial float64
		want string
	}{
		{0.0, "hyper-realistic"},
		{0.2, "hyper-realistic"},
		{0.35, "grounded"},
		{0.5, "balanced"},
		{0.7, "fantastical"},
		{0.81, "pure fantasy"},
		{1.0, "pure fantasy"},
	}
	for _, tc := range cases {
		if got := RealismTier(tc.dial); got != tc.want {
			t.Fatalf("RealismTier(%v) = %q, want %q", tc.dial, got, tc.want)
		}
	}
}
