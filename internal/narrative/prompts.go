package narrative

import (
	"bytes"
	_ "embed"
	"text/template"

	"github.com/fablegame/fable/internal/engine"
)

//go:embed prompts/initial_story.txt
var initialStoryPrompt string

//go:embed prompts/next_segment.txt
var nextSegmentPrompt string

const systemInitial = `You are the narrator of an interactive fiction game.
Respond with a single JSON object and nothing else: no prose, no markdown fences.
Schema: {"backstory": string, "segment": {"text": string, "choices": [{"id": string, "text": string}]}}
The backstory is 2-3 paragraphs. The opening scene text is 4-6 paragraphs.
Provide exactly 3 choices, each a short actionable sentence.`

const systemContinuation = `You are the narrator of an interactive fiction game.
Respond with a single JSON object and nothing else: no prose, no markdown fences.
Schema: {"text": string, "choices": [{"id": string, "text": string}]}
The scene text is 2-3 paragraphs. Provide exactly 3 choices, each a short actionable sentence.`

var (
	initialTmpl      = template.Must(template.New("initial_story").Parse(initialStoryPrompt))
	continuationTmpl = template.Must(template.New("next_segment").Parse(nextSegmentPrompt))
)

// RealismTier maps the continuous difficulty dial onto the five-step
// narrative-tone classification.
func RealismTier(d float64) string {
	switch {
	case d <= 0.2:
		return "hyper-realistic"
	case d <= 0.4:
		return "grounded"
	case d <= 0.6:
		return "balanced"
	case d <= 0.8:
		return "fantastical"
	default:
		return "pure fantasy"
	}
}

const (
	segmentPreviewChars = 300
	recentSegments      = 2
	recentMemories      = 3
)

func buildInitialMessages(g *engine.GameState) ([]Message, error) {
	var buf bytes.Buffer
	err := initialTmpl.Execute(&buf, struct {
		Era, Theme, Realism, Character string
	}{g.Era, g.Theme, RealismTier(g.Difficulty), g.Character.Name})
	if err != nil {
		return nil, err
	}
	return []Message{
		{Role: RoleSystem, Content: systemInitial},
		{Role: RoleUser, Content: buf.String()},
	}, nil
}

func buildContinuationMessages(g *engine.GameState, action string) ([]Message, error) {
	var memories []string
	for _, m := range g.RecentMemories(recentMemories) {
		memories = append(memories, m.Title)
	}
	var buf bytes.Buffer
	err := continuationTmpl.Execute(&buf, struct {
		Era, Theme, Character string
		Previews, Memories    []string
		Action                string
	}{g.Era, g.Theme, g.Character.Name, segmentPreviews(g), memories, action})
	if err != nil {
		return nil, err
	}
	return []Message{
		{Role: RoleSystem, Content: systemContinuation},
		{Role: RoleUser, Content: buf.String()},
	}, nil
}

// segmentPreviews returns truncated previews of the most recent scenes, the
// in-play segment included, oldest first.
func segmentPreviews(g *engine.GameState) []string {
	history := g.PastSegments
	if g.CurrentSegment != nil {
		history = append(append([]engine.Segment{}, history...), *g.CurrentSegment)
	}
	if len(history) > recentSegments {
		history = history[len(history)-recentSegments:]
	}
	previews := make([]string, 0, len(history))
	for _, seg := range history {
		previews = append(previews, previewText(seg.Text))
	}
	return previews
}

func previewText(s string) string {
	if len(s) <= segmentPreviewChars {
		return s
	}
	return s[:segmentPreviewChars] + "…"
}
