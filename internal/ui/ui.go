package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/fablegame/fable/internal/engine"
	"github.com/fablegame/fable/internal/game"
	"github.com/fablegame/fable/internal/narrative"
	"github.com/fablegame/fable/internal/quota"
	"github.com/fablegame/fable/internal/store"
	"github.com/fablegame/fable/internal/util"
)

const (
	viewMainMenu = "main_menu"
	viewSetup    = "setup"
	viewPlay     = "play"
	viewGames    = "games"
	viewHelp     = "help"
)

var menuItems = []string{"New Game", "Saved Games", "Help", "Quit"}

type styles struct {
	title   lipgloss.Style
	muted   lipgloss.Style
	accent  lipgloss.Style
	warn    lipgloss.Style
	success lipgloss.Style
}

type model struct {
	ctx     context.Context
	svc     *game.Service
	cfg     util.Config
	version string

	view   string
	theme  string
	styles styles

	menuIndex int

	// setup wizard text entry
	input string

	// play view
	rendered   string
	busy       bool
	status     string
	customMode bool
	// retained so a dropped connection can be retried without replaying input
	lastAction string
	retryStart bool

	games     []store.GameSummary
	gameIndex int

	width  int
	height int
}

type startedMsg struct {
	game *engine.GameState
	err  error
}

type actedMsg struct {
	game *engine.GameState
	err  error
}

type gamesMsg struct {
	list []store.GameSummary
	err  error
}

type resumedMsg struct {
	game *engine.GameState
	err  error
}

func initialModel(ctx context.Context, svc *game.Service, cfg util.Config, version string) model {
	m := model{
		ctx:     ctx,
		svc:     svc,
		cfg:     cfg,
		version: version,
		view:    viewMainMenu,
		theme:   "catppuccin",
		width:   100,
		height:  30,
	}
	m.applyTheme()
	return m
}

func (m *model) applyTheme() {
	p := paletteFor(m.theme)
	m.styles.title = lipgloss.NewStyle().Bold(true).Foreground(p.Accent)
	m.styles.muted = lipgloss.NewStyle().Foreground(p.Muted)
	m.styles.accent = lipgloss.NewStyle().Foreground(p.Accent)
	m.styles.warn = lipgloss.NewStyle().Foreground(p.Warning)
	m.styles.success = lipgloss.NewStyle().Foreground(p.Success)
}

func (m model) Init() tea.Cmd { return nil }

// commands --------------------------------------------------------------

func (m model) startGameCmd() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		g, err := svc.StartGame(ctx)
		return startedMsg{game: g, err: err}
	}
}

func (m model) actCmd(action string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		g, err := svc.Act(ctx, action)
		return actedMsg{game: g, err: err}
	}
}

func (m model) loadGamesCmd() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		list, err := svc.ListGames(ctx)
		return gamesMsg{list: list, err: err}
	}
}

func (m model) resumeCmd(id string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		g, err := svc.Resume(ctx, id)
		return resumedMsg{game: g, err: err}
	}
}

// update ----------------------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if g := m.svc.Session().Game(); g != nil && g.CurrentSegment != nil {
			m.rendered = m.renderMarkdown(g.CurrentSegment.Text)
		}
		return m, nil
	case startedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = m.statusFor(msg.err)
			m.retryStart = narrative.IsNetworkError(msg.err)
			return m, nil
		}
		m.view = viewPlay
		m.retryStart = false
		m.status = ""
		m.rendered = m.renderMarkdown(msg.game.CurrentSegment.Text)
		return m, nil
	case actedMsg:
		m.busy = false
		if msg.err != nil {
			m.status = m.statusFor(msg.err)
			return m, nil
		}
		m.lastAction = ""
		m.status = ""
		m.rendered = m.renderMarkdown(msg.game.CurrentSegment.Text)
		return m, nil
	case gamesMsg:
		if msg.err != nil {
			m.status = "could not load saved games: " + msg.err.Error()
			return m, nil
		}
		m.games = msg.list
		m.gameIndex = 0
		m.view = viewGames
		return m, nil
	case resumedMsg:
		if msg.err != nil {
			m.status = "could not resume: " + msg.err.Error()
			return m, nil
		}
		m.view = viewPlay
		m.status = ""
		if msg.game.CurrentSegment != nil {
			m.rendered = m.renderMarkdown(msg.game.CurrentSegment.Text)
		} else {
			m.rendered = m.styles.muted.Render("This story has ended.")
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.svc.Wait()
			return m, tea.Quit
		}
		switch m.view {
		case viewMainMenu:
			return m.updateMenu(msg)
		case viewSetup:
			return m.updateSetup(msg)
		case viewPlay:
			return m.updatePlay(msg)
		case viewGames:
			return m.updateGames(msg)
		case viewHelp:
			m.view = viewMainMenu
			return m, nil
		}
	}
	return m, nil
}

func (m model) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuIndex > 0 {
			m.menuIndex--
		}
	case "down", "j":
		if m.menuIndex < len(menuItems)-1 {
			m.menuIndex++
		}
	case "t":
		m.theme = nextThemeName(m.theme)
		m.applyTheme()
	case "enter":
		switch menuItems[m.menuIndex] {
		case "New Game":
			m.svc.Session().Setup = engine.NewSetup()
			m.input = ""
			m.status = ""
			m.view = viewSetup
		case "Saved Games":
			return m, m.loadGamesCmd()
		case "Help":
			m.view = viewHelp
		case "Quit":
			m.svc.Wait()
			return m, tea.Quit
		}
	case "q":
		m.svc.Wait()
		return m, tea.Quit
	}
	return m, nil
}

func (m model) updateSetup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	setup := &m.svc.Session().Setup
	switch msg.String() {
	case "esc":
		m.view = viewMainMenu
		return m, nil
	case "left":
		setup.Difficulty = clampDial(setup.Difficulty - 0.1)
		return m, nil
	case "right":
		setup.Difficulty = clampDial(setup.Difficulty + 0.1)
		return m, nil
	case "tab":
		if setup.Step == engine.StepCharacter {
			setup.GenerateBackstory = !setup.GenerateBackstory
		}
		return m, nil
	case "backspace":
		if len(m.input) > 0 {
			runes := []rune(m.input)
			m.input = string(runes[:len(runes)-1])
		}
		return m, nil
	case "enter":
		switch setup.Step {
		case engine.StepEra:
			setup.Era = strings.TrimSpace(m.input)
		case engine.StepTheme:
			setup.Theme = strings.TrimSpace(m.input)
		case engine.StepCharacter:
			setup.CharacterName = strings.TrimSpace(m.input)
		}
		if err := setup.Advance(); err != nil {
			m.status = m.statusFor(err)
			return m, nil
		}
		m.input = ""
		m.status = ""
		if setup.Step == engine.StepComplete {
			m.busy = true
			m.status = "Summoning the opening scene..."
			return m, m.startGameCmd()
		}
		return m, nil
	}
	if k := msg.String(); isRuneInput(k) {
		m.input += k
	}
	return m, nil
}

func (m model) updatePlay(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	g := m.svc.Session().Game()
	if m.customMode {
		switch msg.String() {
		case "esc":
			m.customMode = false
			m.input = ""
		case "backspace":
			if len(m.input) > 0 {
				runes := []rune(m.input)
				m.input = string(runes[:len(runes)-1])
			}
		case "enter":
			action := strings.TrimSpace(m.input)
			if action == "" {
				return m, nil
			}
			m.customMode = false
			m.input = ""
			return m.submit(action)
		default:
			if k := msg.String(); isRuneInput(k) {
				m.input += k
			}
		}
		return m, nil
	}
	switch k := msg.String(); k {
	case "m", "esc":
		m.view = viewMainMenu
		return m, nil
	case "q":
		m.svc.Wait()
		return m, tea.Quit
	case "c":
		if g != nil && g.CurrentSegment != nil && g.CurrentSegment.CustomAllowed {
			m.customMode = true
			m.input = ""
		}
		return m, nil
	case "r":
		if m.retryStart {
			m.busy = true
			m.status = "Retrying..."
			return m, m.startGameCmd()
		}
		if m.lastAction != "" {
			m.busy = true
			m.status = "Retrying..."
			return m, m.actCmd(m.lastAction)
		}
		return m, nil
	case "e":
		if g != nil && !g.GameOver {
			m.svc.EndGame(m.ctx)
			m.rendered = m.styles.muted.Render("This story has ended.")
			m.status = ""
		}
		return m, nil
	default:
		if g == nil || g.CurrentSegment == nil {
			return m, nil
		}
		if len(k) == 1 && k[0] >= '1' && k[0] <= '9' {
			idx := int(k[0] - '1')
			if idx < len(g.CurrentSegment.Choices) {
				return m.submit(g.CurrentSegment.Choices[idx].Text)
			}
		}
	}
	return m, nil
}

func (m model) submit(action string) (tea.Model, tea.Cmd) {
	m.busy = true
	m.lastAction = action
	m.status = "The story continues..."
	return m, m.actCmd(action)
}

func (m model) updateGames(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.view = viewMainMenu
	case "up", "k":
		if m.gameIndex > 0 {
			m.gameIndex--
		}
	case "down", "j":
		if m.gameIndex < len(m.games)-1 {
			m.gameIndex++
		}
	case "x":
		if m.gameIndex < len(m.games) {
			id := m.games[m.gameIndex].ID
			if m.svc.DeleteGame(m.ctx, id) {
				m.games = append(m.games[:m.gameIndex], m.games[m.gameIndex+1:]...)
				if m.gameIndex >= len(m.games) && m.gameIndex > 0 {
					m.gameIndex--
				}
			} else {
				m.status = "delete failed, try again"
			}
		}
	case "enter":
		if m.gameIndex < len(m.games) {
			return m, m.resumeCmd(m.games[m.gameIndex].ID)
		}
	}
	return m, nil
}

// view ------------------------------------------------------------------

func (m model) View() string {
	switch m.view {
	case viewMainMenu:
		return m.renderMenu()
	case viewSetup:
		return m.renderSetup()
	case viewPlay:
		return m.renderPlay()
	case viewGames:
		return m.renderGames()
	case viewHelp:
		return m.renderHelp()
	}
	return ""
}

func (m model) renderMenu() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("Fable "+m.version) + "\n")
	b.WriteString(m.styles.muted.Render("an interactive fiction engine") + "\n\n")
	for i, item := range menuItems {
		cursor := "  "
		line := item
		if i == m.menuIndex {
			cursor = "> "
			line = m.styles.accent.Render(item)
		}
		b.WriteString(cursor + line + "\n")
	}
	b.WriteString("\n" + m.styles.muted.Render("up/down move, enter select, t theme ("+m.theme+"), q quit") + "\n")
	if m.cfg.Tier != "" {
		b.WriteString(m.styles.muted.Render(m.cfg.Tier+" tier") + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + m.styles.warn.Render(m.status) + "\n")
	}
	return b.String()
}

var setupPrompts = map[engine.SetupStep]string{
	engine.StepEra:       "In what era does your story take place?",
	engine.StepTheme:     "What is the story about?",
	engine.StepCharacter: "Who are you?",
}

func (m model) renderSetup() string {
	setup := m.svc.Session().Setup
	var b strings.Builder
	b.WriteString(m.styles.title.Render("New Story") + "\n\n")
	if setup.Era != "" {
		b.WriteString(m.styles.muted.Render("era: ") + setup.Era + "\n")
	}
	if setup.Theme != "" {
		b.WriteString(m.styles.muted.Render("theme: ") + setup.Theme + "\n")
	}
	if setup.CharacterName != "" {
		b.WriteString(m.styles.muted.Render("character: ") + setup.CharacterName + "\n")
	}
	b.WriteString(m.styles.muted.Render("tone: ") + narrative.RealismTier(setup.Difficulty) + " " + dialBar(setup.Difficulty) + "\n\n")
	if prompt, ok := setupPrompts[setup.Step]; ok {
		b.WriteString(prompt + "\n")
		b.WriteString("> " + m.input + "_\n")
	}
	if setup.Step == engine.StepCharacter {
		mark := "off"
		if setup.GenerateBackstory {
			mark = "on"
		}
		b.WriteString(m.styles.muted.Render("generated backstory: "+mark+" (tab toggles)") + "\n")
	}
	b.WriteString("\n" + m.styles.muted.Render("enter confirm, left/right adjust tone, esc back") + "\n")
	if m.status != "" {
		b.WriteString("\n" + m.styles.warn.Render(m.status) + "\n")
	}
	return b.String()
}

func (m model) renderPlay() string {
	g := m.svc.Session().Game()
	if g == nil {
		return m.styles.muted.Render("no active story, press esc") + "\n"
	}
	var b strings.Builder
	header := fmt.Sprintf("%s | %s | turn %d", g.Character.Name, g.Era, g.TurnCount)
	b.WriteString(m.styles.title.Render(header))
	if n := m.svc.Unsynced(); n > 0 {
		b.WriteString("  " + m.styles.warn.Render(fmt.Sprintf("%d turns awaiting sync", n)))
	}
	b.WriteString("\n\n")
	b.WriteString(m.rendered)
	if g.CurrentSegment != nil && !m.busy {
		b.WriteString("\n")
		for i, c := range g.CurrentSegment.Choices {
			b.WriteString(fmt.Sprintf("  %s %s\n", m.styles.accent.Render(fmt.Sprintf("%d.", i+1)), c.Text))
		}
		if g.CurrentSegment.CustomAllowed {
			if m.customMode {
				b.WriteString("\n  do: " + m.input + "_\n")
			} else {
				b.WriteString("\n" + m.styles.muted.Render("  c custom action") + "\n")
			}
		}
	}
	if m.busy {
		b.WriteString("\n" + m.styles.muted.Render("  (writing...)") + "\n")
	}
	if m.status != "" {
		b.WriteString("\n" + m.styles.warn.Render(m.status) + "\n")
	}
	b.WriteString("\n" + m.styles.muted.Render("1-9 choose, c custom, e end story, m menu, q quit") + "\n")
	return b.String()
}

func (m model) renderGames() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("Saved Stories") + "\n\n")
	if len(m.games) == 0 {
		b.WriteString(m.styles.muted.Render("(nothing saved yet)") + "\n")
	}
	for i, g := range m.games {
		cursor := "  "
		if i == m.gameIndex {
			cursor = "> "
		}
		state := fmt.Sprintf("turn %d", g.TurnCount)
		if g.GameOver {
			state = m.styles.muted.Render("ended")
		}
		line := fmt.Sprintf("%s%s, %s (%s) %s", cursor, g.CharacterName, g.Era, g.Theme, state)
		if i == m.gameIndex {
			line = m.styles.accent.Render(line)
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + m.styles.muted.Render("enter resume, x delete, esc back") + "\n")
	if m.status != "" {
		b.WriteString("\n" + m.styles.warn.Render(m.status) + "\n")
	}
	return b.String()
}

func (m model) renderHelp() string {
	var b strings.Builder
	b.WriteString(m.styles.title.Render("Help") + "\n\n")
	b.WriteString("Fable plays one scene at a time. Each scene ends in three\n")
	b.WriteString("choices; you can also type your own action with c.\n\n")
	b.WriteString("Progress is saved after every turn. When the connection is\n")
	b.WriteString("down, turns queue locally and sync once it returns.\n\n")
	b.WriteString(m.styles.muted.Render("press any key to go back") + "\n")
	return b.String()
}

// helpers ---------------------------------------------------------------

func (m model) renderMarkdown(md string) string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	renderer, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(width))
	if err != nil {
		return md
	}
	out, err := renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

// statusFor translates pipeline and gate errors into player-facing text.
func (m model) statusFor(err error) string {
	var exceeded *quota.ExceededError
	if errors.As(err, &exceeded) {
		return fmt.Sprintf("Daily story budget spent. It refills at %s.",
			exceeded.ResetTime.Local().Format(time.Kitchen))
	}
	var limit *engine.TurnLimitError
	if errors.As(err, &limit) {
		return fmt.Sprintf("This tale has reached its %d-turn limit. Upgrade to keep going.", limit.Limit)
	}
	var incomplete *engine.SetupIncompleteError
	if errors.As(err, &incomplete) {
		return "Still needed: " + strings.Join(incomplete.Missing, ", ")
	}
	if narrative.IsNetworkError(err) {
		return "The connection faltered. Press r to retry."
	}
	return err.Error()
}

func isRuneInput(s string) bool {
	runes := []rune(s)
	return len(runes) == 1 && runes[0] >= 32 && runes[0] < 127
}

func clampDial(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func dialBar(v float64) string {
	const width = 10
	filled := int(v*width + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
