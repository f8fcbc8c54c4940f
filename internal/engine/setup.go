package engine

import "strings"

type SetupStep string

const (
	StepEra       SetupStep = "era"
	StepTheme     SetupStep = "theme"
	StepCharacter SetupStep = "character"
	StepComplete  SetupStep = "complete"
)

// GameSetup is transient wizard state, discarded once a game starts.
type GameSetup struct {
	Era               string
	Theme             string
	Difficulty        float64 // 0..1, realism to fantasy
	CharacterName     string
	GenerateBackstory bool
	Step              SetupStep
}

func NewSetup() GameSetup {
	return GameSetup{Difficulty: 0.5, Step: StepEra}
}

// Advance validates the current step and moves forward. Returns
// SetupIncompleteError when the step's required field is empty.
func (s *GameSetup) Advance() error {
	switch s.Step {
	case StepEra:
		if strings.TrimSpace(s.Era) == "" {
			return &SetupIncompleteError{Missing: []string{"era"}}
		}
		s.Step = StepTheme
	case StepTheme:
		if strings.TrimSpace(s.Theme) == "" {
			return &SetupIncompleteError{Missing: []string{"theme"}}
		}
		s.Step = StepCharacter
	case StepCharacter:
		if strings.TrimSpace(s.CharacterName) == "" {
			return &SetupIncompleteError{Missing: []string{"character name"}}
		}
		s.Step = StepComplete
	}
	return nil
}

// Restart clears the given step's own fields. There is no reverse
// transition; going back means redoing the step from scratch.
func (s *GameSetup) Restart(step SetupStep) {
	switch step {
	case StepEra:
		s.Era = ""
	case StepTheme:
		s.Theme = ""
	case StepCharacter:
		s.CharacterName = ""
		s.GenerateBackstory = false
	}
	s.Step = step
}

// missing lists empty required fields across all steps.
func (s *GameSetup) missing() []string {
	var out []string
	if strings.TrimSpace(s.Era) == "" {
		out = append(out, "era")
	}
	if strings.TrimSpace(s.Theme) == "" {
		out = append(out, "theme")
	}
	if strings.TrimSpace(s.CharacterName) == "" {
		out = append(out, "character name")
	}
	return out
}
