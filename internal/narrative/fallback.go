package narrative

import (
	"fmt"

	"github.com/fablegame/fable/internal/engine"
)

// Fallback content is deterministic: same era/theme/character in, same text
// out. It keeps the player moving when the service returns garbage, and the
// loud sink event keeps the failure from being masked indefinitely.

func fallbackChoices() []engine.Choice {
	return []engine.Choice{
		{ID: "1", Text: "Press on carefully"},
		{ID: "2", Text: "Stop and take stock of your surroundings"},
		{ID: "3", Text: "Seek out someone who might know more"},
	}
}

func fallbackInitial(g *engine.GameState) (string, segmentDraft) {
	backstory := fmt.Sprintf(
		"%s has lived an unremarkable life in %s, at least as far as anyone else can tell. "+
			"But small things never sat right: a debt nobody would name, a door kept locked, "+
			"a story about the past that changed a little with each telling. Today the questions stopped waiting.",
		g.Character.Name, g.Era)
	text := fmt.Sprintf(
		"The world of %s stretches out before %s, shaped by %s in ways both seen and unseen. "+
			"The day began like any other, but something has shifted. A message, a stranger, a sound "+
			"that didn't belong - whatever it was, there is no going back to the ordinary now. "+
			"The first choice is waiting.",
		g.Era, g.Character.Name, g.Theme)
	return backstory, segmentDraft{Text: text, Choices: fallbackChoices()}
}

func fallbackContinuation(g *engine.GameState, action string) segmentDraft {
	text := fmt.Sprintf(
		"%s follows through: %s. The moment passes quietly, but its weight lingers in the air of %s. "+
			"Somewhere beyond what can be seen, the consequences are already in motion, "+
			"and the story of %s bends a little further toward its end.",
		g.Character.Name, action, g.Era, g.Theme)
	return segmentDraft{Text: text, Choices: fallbackChoices()}
}
