package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/weave/il"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFD580"))

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	logStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderLeft(true).
			PaddingLeft(1)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// logBuffer collects interceptor log output between calls.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) Sync() error { return nil }

func (b *logBuffer) take() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := strings.TrimRight(b.buf.String(), "\n")
	b.buf.Reset()
	return s
}

type interactiveModel struct {
	ctx      context.Context
	err      error
	session  *session
	opts     sessionOptions
	logs     *logBuffer
	filename string
	result   string
	output   string
	entries  []entry
	inputs   []textinput.Model
	listing  viewport.Model
	width    int
	height   int
	selected int
	focusIdx int
	state    modelState
	loaded   bool
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
	stateDisasm
)

func newInteractiveModel(ctx context.Context, filename string, opts sessionOptions) *interactiveModel {
	logs := &logBuffer{}
	ec := zap.NewDevelopmentEncoderConfig()
	ec.TimeKey = ""
	opts.log = zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(ec), logs, zapcore.InfoLevel))
	return &interactiveModel{
		ctx:      ctx,
		opts:     opts,
		logs:     logs,
		filename: filename,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err     error
	session *session
	entries []entry
}

type callResultMsg struct {
	err    error
	result string
	output string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	s, err := openSession(m.ctx, m.filename, m.opts)
	if err != nil {
		return loadedMsg{err: err}
	}
	entries, err := s.entries("", nil)
	if err != nil {
		return loadedMsg{err: err}
	}
	return loadedMsg{session: s, entries: entries}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			if m.state != stateInputArgs {
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.entries)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if len(m.entries) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.reset()
			}

		case "d":
			switch m.state {
			case stateSelectFunc:
				if len(m.entries) > 0 {
					m.openListing()
				}
				return m, nil
			case stateDisasm:
				m.state = stateSelectFunc
				return m, nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult, stateDisasm:
				m.reset()
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.listing.Width = msg.Width
		m.listing.Height = listingHeight(msg.Height)

	case loadedMsg:
		m.loaded = true
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session
		m.entries = msg.entries

	case callResultMsg:
		m.result = msg.result
		m.output = msg.output
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateDisasm {
		var cmd tea.Cmd
		m.listing, cmd = m.listing.Update(msg)
		return m, cmd
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) reset() {
	m.state = stateSelectFunc
	m.result = ""
	m.output = ""
	m.err = nil
}

func listingHeight(h int) int {
	if h <= 6 {
		return 20
	}
	return h - 6
}

func (m *interactiveModel) openListing() {
	width := m.width
	if width == 0 {
		width = 80
	}
	m.listing = viewport.New(width, listingHeight(m.height))
	m.listing.SetContent(il.Disassemble(m.entries[m.selected].method.Def))
	m.state = stateDisasm
}

func (m *interactiveModel) prepareInputs() {
	e := m.entries[m.selected]
	params := e.method.Descriptor().Params
	m.inputs = make([]textinput.Model, len(params))
	for i, p := range params {
		ti := textinput.New()
		ti.Placeholder = p
		ti.Prompt = paramName(e, i) + ": "
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func paramName(e entry, i int) string {
	if name := e.method.Def.Params[i].Name; name != "" {
		return name
	}
	return fmt.Sprintf("arg%d", i)
}

func (m *interactiveModel) callMethod() tea.Msg {
	if m.session == nil {
		return callResultMsg{err: fmt.Errorf("module not loaded")}
	}
	e := m.entries[m.selected]
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	args, err := parseArgs(raw, e.method.Params())
	if err != nil {
		return callResultMsg{err: err}
	}

	result, err := m.session.invoke(m.ctx, e.class, e.method, args)
	output := m.logs.take()
	if err != nil {
		return callResultMsg{err: err, output: output}
	}
	return callResultMsg{result: formatResult(result), output: output}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("IL Runner"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	if m.session.woven {
		b.WriteString(" ")
		b.WriteString(typeStyle.Render("(woven)"))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.entries) == 0 {
			b.WriteString("The module declares no callable methods.\n\n")
			b.WriteString(helpStyle.Render("q quit"))
			break
		}
		b.WriteString("Select a method to call:\n\n")
		var last string
		for i, e := range m.entries {
			if e.class.Name != last {
				b.WriteString(classStyle.Render(e.class.Name))
				b.WriteString("\n")
				last = e.class.Name
			}
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + signature(e.method)))
			} else {
				b.WriteString("  " + m.formatMethod(e))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • d disassemble • q quit"))

	case stateInputArgs:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(e.method.String())))
		params := e.method.Descriptor().Params
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(params[i]))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(e.method.String())))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		if m.output != "" {
			b.WriteString("\n\n")
			b.WriteString(logStyle.Render(m.output))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))

	case stateDisasm:
		e := m.entries[m.selected]
		b.WriteString(fmt.Sprintf("Listing of %s:\n\n", funcStyle.Render(e.method.String())))
		b.WriteString(m.listing.View())
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render(fmt.Sprintf("↑/↓ scroll (%3.f%%) • d/esc back • q quit", m.listing.ScrollPercent()*100)))
	}

	return b.String()
}

func (m *interactiveModel) formatMethod(e entry) string {
	d := e.method.Descriptor()
	params := make([]string, len(d.Params))
	for i, p := range d.Params {
		params[i] = paramName(e, i) + ": " + typeStyle.Render(p)
	}
	var b strings.Builder
	if d.Static {
		b.WriteString(typeStyle.Render("static "))
	}
	b.WriteString(funcStyle.Render(d.Name))
	b.WriteString("(" + strings.Join(params, ", ") + ")")
	if !d.ReturnsVoid() {
		b.WriteString(" -> " + typeStyle.Render(d.Return))
	}
	return b.String()
}

func runInteractive(ctx context.Context, filename string, opts sessionOptions) error {
	p := tea.NewProgram(newInteractiveModel(ctx, filename, opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
