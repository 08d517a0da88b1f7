package repl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/sahilm/fuzzy"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ardnew/muster/log"
	"github.com/ardnew/muster/source"
	"github.com/ardnew/muster/view"
)

// editDictMsg is sent when dictionary editing completes successfully.
type editDictMsg struct{ dict view.Map }

// editCancelledMsg is sent when the user cleared the editor content.
type editCancelledMsg struct{}

// editDeclinedMsg is sent when the user declined to re-edit after a decode
// error.
type editDeclinedMsg struct{}

// editErrorMsg is sent when the edit process encounters a non-decode error.
type editErrorMsg struct{ err error }

const (
	renderPrompt = "➜ "
	ctrlPrompt   = " :"
)

func helpMessage() string {
	return `
: Commands (press Esc to toggle mode, or prefix with ':' in render mode):

  help             Print this cruft
  set INDEX=EXPR   Assign the result of expression EXPR to root index INDEX
  get INDEX        Print the root dictionary entry at INDEX
  keys             List root dictionary entries
  edit             Edit the root dictionary in external $EDITOR
  clear            Clear screen
  quit             Exit REPL

Usage:
  Type template text to render it against the root dictionary
  Escapes \n and \t in template text stand for newline and tab
  Completions appear inside markers such as {{name}}, {{#name}}, {{>name}}
  Press Tab / Shift-Tab to cycle through candidates
  Press Space to accept the current candidate
  Press Esc to toggle between render and command modes
  Use Up/Down arrows for history navigation (mode switches automatically)
  Use Shift+Up/Shift+Down for history navigation within current mode only
  Press Ctrl+C on empty line or Ctrl+D to exit
`
}

// inputMode represents the current input mode.
type inputMode int

const (
	modeRender inputMode = iota
	modeCtrl
)

func (i inputMode) other() inputMode {
	if i == modeRender {
		return modeCtrl
	}

	return modeRender
}

// Styles.
var (
	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("6")).
			Bold(true)
	ctrlPromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)
	inputStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	resultStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	suggestionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	selectedStyle   = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("4"))
)

// unescape expands the escapes accepted in single-line template input.
var unescape = strings.NewReplacer(`\n`, "\n", `\t`, "\t", `\\`, `\`)

// formatCommand formats the echo line of an input with its mode's prompt.
func formatCommand(mode inputMode, input string) string {
	if mode == modeCtrl {
		return ctrlPromptStyle.Render(ctrlPrompt) + inputStyle.Render(input)
	}

	return promptStyle.Render(renderPrompt) + inputStyle.Render(input)
}

// model is the Bubble Tea model for the REPL.
type model struct {
	ctxFunc      func() context.Context
	input        textinput.Model
	engine       *view.Engine
	partials     []string
	logger       log.Logger
	history      *History
	historyIdx   int
	matches      fuzzy.Matches // current fuzzy match results
	candidates   []string      // backing candidate list
	wordStart    int           // byte offset of current word start
	wordEnd      int           // byte offset of current word end
	suggIdx      int           // selected candidate index
	tabActive    bool          // whether user is tab-cycling
	preTabText   string        // input text before tab-cycling began
	preTabCursor int           // cursor position before tab-cycling began
	width        int           // terminal width for ellipsization
	quitting     bool
	mode         inputMode
	renderText   string
	renderCursor int
	ctrlText     string
	ctrlCursor   int
}

// Run starts an interactive session rendering input against engine.
// Partials are the template keys offered when completing partial markers.
// History persists in cacheDir.
func Run(
	ctx context.Context,
	engine *view.Engine,
	partials []string,
	cacheDir string,
	logger log.Logger,
) (err error) {
	ctx, cancel := context.WithCancelCause(ctx)

	defer func(err *error) { cancel(*err) }(&err)

	logger.TraceContext(
		ctx,
		"repl start",
		slog.String("cache_dir", cacheDir),
		slog.Int("root_entries", len(engine.Root())),
		slog.Int("partials", len(partials)),
	)

	history := NewHistory(filepath.Join(cacheDir, baseHistory))
	if err := history.Load(); err != nil {
		logger.WarnContext(ctx, "could not load history", slog.Any("error", err))
	}

	logger.TraceContext(
		ctx,
		"repl history loaded",
		slog.Int("entry_count", history.Len()),
	)

	m := newModel(ctx, engine, partials, history, logger)

	p := tea.NewProgram(m, tea.WithContext(ctx))
	_, err = p.Run()

	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}

	return err
}

const defaultWidth = 80

func newModel(
	ctx context.Context,
	engine *view.Engine,
	partials []string,
	history *History,
	logger log.Logger,
) model {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(renderPrompt)
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = defaultWidth

	return model{
		ctxFunc:    func() context.Context { return ctx },
		input:      ti,
		engine:     engine,
		partials:   partials,
		logger:     logger,
		history:    history,
		historyIdx: history.Len(),
		suggIdx:    -1,
		width:      defaultWidth,
		mode:       modeRender,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - len(renderPrompt) - 2

		return m, nil

	case editDictMsg:
		m.replaceRoot(msg.dict)
		m.logger.TraceContext(
			m.ctxFunc(),
			"repl edit complete",
			slog.Int("root_entries", len(m.engine.Root())),
		)

		return m, tea.Println(resultStyle.Render("✔ — dictionary updated"))

	case editCancelledMsg:
		return m, tea.Println(hintStyle.Render("🗴 — edit cancelled."))

	case editDeclinedMsg:
		m.quitting = true

		return m, tea.Quit

	case editErrorMsg:
		return m, tea.Println(
			errorStyle.Render("🗴 — error: " + msg.err.Error()),
		)
	}

	var cmd tea.Cmd

	m.input, cmd = m.input.Update(msg)

	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.hintView())
	b.WriteString("\n")

	return b.String()
}

// hintView renders the line below the input: the history position, a usage
// hint, a function signature, or the completion candidates.
func (m model) hintView() string {
	input := m.input.Value()

	if m.historyIdx < m.history.Len() {
		return hintStyle.Render(fmt.Sprintf("%s/%d",
			lipgloss.NewStyle().Bold(true).Render(strconv.Itoa(m.historyIdx+1)),
			m.history.Len()))
	}

	if strings.TrimSpace(input) == "" {
		if m.mode == modeRender {
			return hintStyle.Render("Type template text or press Esc for commands")
		}

		return hintStyle.Render("Type: " + strings.Join(ctrlCommands, ", ") + " (press Esc to return)")
	}

	if line, off, ok := m.ctrlLine(input); ok && strings.HasPrefix(line, "set ") {
		call := detectFunctionCall(line, m.cursor()-off)
		if call.inCall {
			if sig, params := getSignature(call.name); sig != "" {
				return renderSignatureHint(call.name, params, call.argIndex)
			}
		}
	}

	return renderCandidateBar(m.matches, m.suggIdx, m.tabActive, m.width)
}

// keyMap holds the REPL key bindings.
type keyMap struct {
	Interrupt key.Binding
	EOF       key.Binding
	Submit    key.Binding
	Next      key.Binding
	Prev      key.Binding
	Older     key.Binding
	Newer     key.Binding
	OlderMode key.Binding
	NewerMode key.Binding
	Toggle    key.Binding
}

//nolint:gochecknoglobals
var keys = keyMap{
	Interrupt: key.NewBinding(key.WithKeys("ctrl+c")),
	EOF:       key.NewBinding(key.WithKeys("ctrl+d")),
	Submit:    key.NewBinding(key.WithKeys("enter")),
	Next:      key.NewBinding(key.WithKeys("tab")),
	Prev:      key.NewBinding(key.WithKeys("shift+tab")),
	Older:     key.NewBinding(key.WithKeys("up")),
	Newer:     key.NewBinding(key.WithKeys("down")),
	OlderMode: key.NewBinding(key.WithKeys("shift+up")),
	NewerMode: key.NewBinding(key.WithKeys("shift+down")),
	Toggle:    key.NewBinding(key.WithKeys("esc")),
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	m.logger.TraceContext(m.ctxFunc(), "repl keypress",
		slog.String("key", msg.String()),
	)

	empty := m.input.Value() == ""

	switch {
	case key.Matches(msg, keys.Interrupt) && empty,
		key.Matches(msg, keys.EOF) && empty:
		m.quitting = true

		return m, tea.Quit

	case key.Matches(msg, keys.Interrupt):
		m.input.SetValue("")
		m.tabActive = false
		m.historyIdx = m.history.Len()
		refreshMatches(&m, false)

		return m, nil

	case key.Matches(msg, keys.EOF):
		return m, nil

	case key.Matches(msg, keys.Submit):
		if !m.tabActive || len(m.matches) == 0 {
			return m.executeInput()
		}

		// Enter while cycling accepts the candidate.
		m.tabActive = false
		refreshMatches(&m, true)

		return m, nil

	case key.Matches(msg, keys.Next):
		return m.cycle(1), nil

	case key.Matches(msg, keys.Prev):
		return m.cycle(-1), nil

	case key.Matches(msg, keys.Older):
		return m.historyStep(-1, false), nil

	case key.Matches(msg, keys.Newer):
		return m.historyStep(1, false), nil

	case key.Matches(msg, keys.OlderMode):
		return m.historyStep(-1, true), nil

	case key.Matches(msg, keys.NewerMode):
		return m.historyStep(1, true), nil

	case key.Matches(msg, keys.Toggle):
		if m.tabActive {
			m.tabActive = false
			m.input.SetValue(m.preTabText)
			m.input.SetCursor(m.preTabCursor)
			refreshMatches(&m, false)

			return m, nil
		}

		return m.switchToMode(m.mode.other()), nil
	}

	// Typing confirms a lone exact candidate; editing keys never do. Space
	// ends tab-cycling and keeps the chosen candidate.
	typed := msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace
	if !typed || msg.String() == " " {
		m.tabActive = false
	}

	var cmd tea.Cmd

	m.historyIdx = m.history.Len()
	m.input, cmd = m.input.Update(msg)
	refreshMatches(&m, typed)

	return m, cmd
}

// cycle moves the candidate selection by step, wrapping at either end. A
// sole candidate is completed and confirmed immediately.
func (m model) cycle(step int) model {
	if len(m.matches) == 0 {
		return m
	}

	if len(m.matches) == 1 {
		replaceCurrentWord(&m, m.matches[0].Str)
		m.tabActive = false
		m.suggIdx = -1
		m.matches = nil

		return m
	}

	if m.tabActive {
		m.suggIdx = (m.suggIdx + step + len(m.matches)) % len(m.matches)
	} else {
		m.tabActive = true
		m.preTabText = m.input.Value()
		m.preTabCursor = m.input.Position()

		m.suggIdx = 0
		if step < 0 {
			m.suggIdx = len(m.matches) - 1
		}
	}

	replaceCurrentWord(&m, m.matches[m.suggIdx].Str)

	return m
}

// cursor returns the input cursor as a byte offset into the input value.
func (m model) cursor() int {
	r := []rune(m.input.Value())

	return len(string(r[:min(m.input.Position(), len(r))]))
}

// setCursor places the input cursor at byte offset off of the input value.
func (m *model) setCursor(off int) {
	m.input.SetCursor(utf8.RuneCountInString(m.input.Value()[:off]))
}

// replaceCurrentWord replaces the current word boundaries in the input with
// the given replacement text and repositions the cursor.
func replaceCurrentWord(m *model, replacement string) {
	input := m.input.Value()
	newCursor := m.wordStart + len(replacement)

	m.input.SetValue(input[:m.wordStart] + replacement + input[m.wordEnd:])
	m.setCursor(newCursor)

	m.wordEnd = newCursor
}

// refreshMatches recomputes fuzzy matches for the current input state.
// When autoConfirm is true it also confirms the completion when exactly one
// candidate remains and the typed word already equals it. Deletions and
// cursor movement pass false so the user can edit freely.
func refreshMatches(m *model, autoConfirm bool) {
	m.matches, m.candidates, m.wordStart, m.wordEnd = m.computeMatches()

	if !m.tabActive {
		m.suggIdx = -1
	}

	if !autoConfirm || len(m.matches) != 1 {
		return
	}

	if m.input.Value()[m.wordStart:m.wordEnd] == m.matches[0].Str {
		m.tabActive = false
		m.suggIdx = -1
		m.matches = nil
	}
}

func (m model) executeInput() (model, tea.Cmd) {
	raw := m.input.Value()

	input := strings.TrimSpace(raw)
	if input == "" {
		return m, nil
	}

	mode := m.mode

	m.renderText, m.renderCursor = "", 0
	m.ctrlText, m.ctrlCursor = "", 0
	m.input.SetValue("")
	m.matches = nil

	if err := m.history.Add(input, mode); err != nil {
		m.logger.DebugContext(m.ctxFunc(), "history not saved", slog.Any("error", err))
	}

	m.historyIdx = m.history.Len()

	echo := tea.Println(formatCommand(mode, input))

	if line, _, ok := m.ctrlLine(input); ok {
		m.logger.TraceContext(m.ctxFunc(), "repl command", slog.String("input", line))

		return m.executeCommand(echo, line)
	}

	m.logger.TraceContext(m.ctxFunc(), "repl render", slog.String("input", raw))

	out := m.engine.Expand(m.ctxFunc(), unescape.Replace(raw))
	if out == "" {
		return m, tea.Sequence(echo, tea.Println(hintStyle.Render("(empty)")))
	}

	return m, tea.Sequence(echo, tea.Println(resultStyle.Render(out)))
}

func (m model) executeCommand(echo tea.Cmd, line string) (model, tea.Cmd) {
	name, args, _ := strings.Cut(strings.TrimSpace(line), " ")

	switch name {
	case "q", "quit", "exit":
		m.quitting = true

		return m, tea.Sequence(echo, tea.Quit)

	case "c", "clear":
		return m, tea.ClearScreen

	case "e", "edit":
		return m, tea.Sequence(echo, m.editCmd())
	}

	out, err := m.runCommand(name, strings.TrimSpace(args))
	if err != nil {
		return m, tea.Sequence(echo, tea.Println(errorStyle.Render("error: "+err.Error())))
	}

	return m, tea.Sequence(echo, tea.Println(out))
}

// runCommand executes a control command that only produces text.
func (m model) runCommand(name, args string) (string, error) {
	m.logger.TraceContext(
		m.ctxFunc(),
		"repl exec command",
		slog.String("command", name),
		slog.String("args", args),
	)

	switch name {
	case "h", "help", "?":
		return helpMessage(), nil

	case "k", "keys", "l", "list":
		return m.listKeys(), nil

	case "g", "get":
		if !source.ValidIndex(args) {
			return "", ErrUsage.With(slog.String("usage", "get INDEX"))
		}

		v, ok := m.engine.Get(args)
		if !ok {
			return "", ErrUndefined.With(slog.String("index", args))
		}

		return resultStyle.Render(describe(v)), nil

	case "s", "set":
		index, v, err := source.Assign(args, m.engine.Root())
		if err != nil {
			return "", err
		}

		m.engine.Set(index, v)

		return resultStyle.Render(index + " = " + describe(v)), nil

	default:
		return "", ErrUnknownCommand.With(slog.String("command", name))
	}
}

// describe formats a dictionary value for display.
func describe(v view.Value) string {
	switch v.(type) {
	case view.List, view.Map:
		return view.Dump(v)
	default:
		return strconv.Quote(view.Stringify(v))
	}
}

func (m model) listKeys() string {
	root := m.engine.Root()
	if len(root) == 0 {
		return hintStyle.Render("  (empty dictionary)")
	}

	var b strings.Builder

	for _, key := range root.Keys() {
		fmt.Fprintf(&b, "  %s %s\n", key, hintStyle.Render(formatPreview(root[key])))
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// replaceRoot swaps the contents of the root dictionary in place so the
// engine keeps the same root map.
func (m model) replaceRoot(dict view.Map) {
	root := m.engine.Root()

	for key := range root {
		delete(root, key)
	}

	for key, v := range dict {
		m.engine.Set(key, v)
	}
}

func (m model) editCmd() tea.Cmd {
	cmd := &editDictCommand{
		root:    m.engine.Root(),
		ctxFunc: m.ctxFunc,
		logger:  m.logger,
	}

	return tea.Exec(cmd, func(err error) tea.Msg {
		if errors.Is(err, ErrEditDeclined) {
			return editDeclinedMsg{}
		}

		if err != nil {
			return editErrorMsg{err: err}
		}

		if cmd.result == nil {
			return editCancelledMsg{}
		}

		return editDictMsg{dict: cmd.result}
	})
}

// historyStep moves through history by dir (-1 older, +1 newer). With
// sameMode, entries of the other mode are skipped; otherwise the mode
// follows the selected entry. Stepping past the newest entry clears input.
func (m model) historyStep(dir int, sameMode bool) model {
	for i := m.historyIdx + dir; i >= 0 && i < m.history.Len(); i += dir {
		entry, err := m.history.Entry(i)
		if err != nil || (sameMode && entry.Mode != m.mode) {
			continue
		}

		if entry.Mode != m.mode {
			m = m.switchToMode(entry.Mode)
		}

		m.historyIdx = i
		m.input.SetValue(entry.Line)
		m.input.CursorEnd()
		refreshMatches(&m, false)

		return m
	}

	if dir > 0 && m.historyIdx < m.history.Len() {
		m.historyIdx = m.history.Len()
		m.input.SetValue("")
		refreshMatches(&m, false)
	}

	return m
}

// switchToMode switches to the specified mode, preserving each mode's input
// state.
func (m model) switchToMode(mode inputMode) model {
	if m.mode == modeRender {
		m.renderText, m.renderCursor = m.input.Value(), m.input.Position()
	} else {
		m.ctrlText, m.ctrlCursor = m.input.Value(), m.input.Position()
	}

	m.mode = mode

	if mode == modeRender {
		m.input.Prompt = promptStyle.Render(renderPrompt)
		m.input.SetValue(m.renderText)
		m.input.SetCursor(m.renderCursor)
	} else {
		m.input.Prompt = ctrlPromptStyle.Render(ctrlPrompt)
		m.input.SetValue(m.ctrlText)
		m.input.SetCursor(m.ctrlCursor)
	}

	refreshMatches(&m, false)

	return m
}
