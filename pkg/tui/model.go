// Package tui is the terminal front end: a form for the request, a progress screen
// while the pipeline runs, and the rendered result or failure.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/orchestrator"
	"promptarchitect/pkg/prompt"
)

// clipboardWriteAll is a package-level variable to allow mocking in tests.
var clipboardWriteAll = clipboard.WriteAll

const (
	defaultWidth      = 80
	defaultHeight     = 24
	chromeHeight      = 6
	snapshotBuffer    = 8
	autoGlamourStyle  = "auto"
	progressBarMaxLen = 80
)

// Controller is the subset of the run controller the terminal UI drives.
// *orchestrator.Controller implements it.
type Controller interface {
	Submit(ctx context.Context, req prompt.Request) (string, error)
	Retry(ctx context.Context) (string, error)
	NewSession() error
	Cancel() error
	Subscribe(buffer int) (<-chan orchestrator.Snapshot, func())
	ModelName() string
}

type screen int

const (
	screenForm screen = iota
	screenProgress
	screenResult
	screenError
)

func (s screen) String() string {
	switch s {
	case screenForm:
		return "form"
	case screenProgress:
		return "progress"
	case screenResult:
		return "result"
	case screenError:
		return "error"
	default:
		return fmt.Sprintf("screen(%d)", int(s))
	}
}

// snapshotMsg carries a controller snapshot into the update loop.
type snapshotMsg orchestrator.Snapshot

// subscriptionClosedMsg reports that the snapshot channel was closed.
type subscriptionClosedMsg struct{}

// Option configures a Model.
type Option func(*Model)

// WithGlamourStyle selects a glamour standard style ("dark", "light", "notty"...).
// The default picks one from the terminal background.
func WithGlamourStyle(style string) Option {
	return func(m *Model) { m.glamourStyle = style }
}

// Model is the bubbletea model.
type Model struct {
	ctx          context.Context
	controller   Controller
	snapshots    <-chan orchestrator.Snapshot
	unsubscribe  func()
	renderer     *glamour.TermRenderer
	result       *prompt.Result
	logger       *logx.Logger
	styles       Styles
	glamourStyle string
	renderedRun  string
	notice       string
	snap         orchestrator.Snapshot
	viewport     viewport.Model
	progress     progress.Model
	form         form
	screen       screen
	width        int
	height       int
	noticeIsErr  bool
}

// NewModel subscribes to controller and builds the initial form screen. Call Close when done.
func NewModel(ctx context.Context, controller Controller, opts ...Option) Model {
	snapshots, unsubscribe := controller.Subscribe(snapshotBuffer)
	m := Model{
		ctx:          ctx,
		controller:   controller,
		snapshots:    snapshots,
		unsubscribe:  unsubscribe,
		logger:       logx.NewLogger("tui"),
		styles:       DefaultStyles(),
		glamourStyle: autoGlamourStyle,
		form:         newForm(),
		progress:     progress.New(progress.WithDefaultGradient()),
		viewport:     viewport.New(defaultWidth, defaultHeight-chromeHeight),
		width:        defaultWidth,
		height:       defaultHeight,
	}
	for _, opt := range opts {
		opt(&m)
	}
	m.resize(defaultWidth, defaultHeight)
	return m
}

// Close releases the snapshot subscription.
func (m Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForSnapshot())
}

// waitForSnapshot listens for the next controller snapshot.
func (m Model) waitForSnapshot() tea.Cmd {
	snapshots := m.snapshots
	return func() tea.Msg {
		snap, ok := <-snapshots
		if !ok {
			return subscriptionClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case snapshotMsg:
		m.apply(orchestrator.Snapshot(msg))
		return m, m.waitForSnapshot()

	case subscriptionClosedMsg:
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case screenForm:
			return m.updateForm(msg)
		case screenProgress:
			return m.updateProgress(msg)
		case screenResult:
			return m.updateResult(msg)
		case screenError:
			return m.updateError(msg)
		}
	}

	if m.screen == screenForm {
		var cmd tea.Cmd
		m.form, cmd = m.form.update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "ctrl+s":
		return m.submit()
	case "enter":
		if m.form.acceptsEnter() {
			return m.submit()
		}
	}
	var cmd tea.Cmd
	m.form, cmd = m.form.update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	runID, err := m.controller.Submit(m.ctx, m.form.request())
	if err != nil {
		m.form.err = err.Error()
		return m, nil
	}
	m.form.err = ""
	m.logger.Debug("Submitted run %s", runID)
	return m, nil
}

func (m Model) updateProgress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "x":
		if err := m.controller.Cancel(); err != nil {
			m.setNotice(err.Error(), true)
		} else {
			m.setNotice("Canceling...", false)
		}
	}
	return m, nil
}

func (m Model) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "c":
		m.copyPrompt()
		return m, nil
	case "n":
		m.newSession()
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m Model) updateError(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "esc":
		return m, tea.Quit
	case "r":
		if _, err := m.controller.Retry(m.ctx); err != nil {
			m.setNotice(err.Error(), true)
		}
	case "n":
		m.newSession()
	}
	return m, nil
}

func (m *Model) copyPrompt() {
	if m.result == nil {
		return
	}
	if err := clipboardWriteAll(m.result.EngineeredPrompt); err != nil {
		m.logger.Warn("Clipboard write failed: %v", err)
		m.setNotice("Failed to copy prompt: "+err.Error(), true)
		return
	}
	m.setNotice("Copied prompt to clipboard", false)
}

func (m *Model) newSession() {
	if err := m.controller.NewSession(); err != nil {
		m.setNotice(err.Error(), true)
	}
}

func (m *Model) setNotice(text string, isErr bool) {
	m.notice = text
	m.noticeIsErr = isErr
}

// apply moves to the screen matching snap.
func (m *Model) apply(snap orchestrator.Snapshot) {
	if snap.Phase != m.snap.Phase {
		m.setNotice("", false)
	}
	m.snap = snap

	switch snap.Phase {
	case orchestrator.PhaseIdle:
		m.result = nil
		m.renderedRun = ""
		m.screen = screenForm
	case orchestrator.PhaseRunning:
		m.screen = screenProgress
	case orchestrator.PhaseComplete:
		if snap.Result != nil && snap.RunID != m.renderedRun {
			m.result = snap.Result
			m.renderedRun = snap.RunID
			m.renderResult()
		}
		m.screen = screenResult
	case orchestrator.PhaseFailed:
		m.screen = screenError
	}
}

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.viewport.Width = width
	m.viewport.Height = max(height-chromeHeight, 3)
	m.progress.Width = min(width-4, progressBarMaxLen)
	m.form.setWidth(width)

	renderer, err := newRenderer(m.glamourStyle, width)
	if err != nil {
		m.logger.Warn("Markdown renderer unavailable: %v", err)
		m.renderer = nil
	} else {
		m.renderer = renderer
	}
	if m.result != nil {
		m.renderResult()
	}
}

func newRenderer(style string, width int) (*glamour.TermRenderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(width-4, 20))}
	if style == "" || style == autoGlamourStyle {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return r, nil
}

func (m *Model) renderResult() {
	markdown := m.result.Markdown()
	content := markdown
	if m.renderer != nil {
		rendered, err := m.renderer.Render(markdown)
		if err != nil {
			m.logger.Warn("Markdown render failed, showing raw text: %v", err)
		} else {
			content = rendered
		}
	}
	m.viewport.SetContent(content)
	m.viewport.GotoTop()
}

// View implements tea.Model.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("Prompt Architect") + " " + m.styles.Muted.Render("model "+m.controller.ModelName()) + "\n")

	var help string
	switch m.screen {
	case screenForm:
		b.WriteString(m.form.view(m.styles))
		help = "tab next field • ←/→ target • space toggle technique • ctrl+s engineer • esc quit"
	case screenProgress:
		b.WriteString(m.progress.ViewAs(float64(m.snap.Progress)/100) + "\n\n")
		b.WriteString(m.snap.Status + "\n")
		help = "esc cancel • ctrl+c quit"
	case screenResult:
		b.WriteString(m.viewport.View() + "\n")
		help = "↑/↓ scroll • c copy prompt • n new session • q quit"
	case screenError:
		b.WriteString(m.styles.Error.Render("Run failed") + "\n\n")
		b.WriteString(m.snap.Error + "\n")
		help = "r retry • n new session • q quit"
	}

	if m.notice != "" {
		style := m.styles.Success
		if m.noticeIsErr {
			style = m.styles.Error
		}
		b.WriteString("\n" + style.Render(m.notice))
	}
	b.WriteString("\n" + m.styles.Help.Render(help))
	return m.styles.Frame.Render(b.String())
}

// Run starts the terminal UI and blocks until the user quits or ctx ends.
// A run still in flight when the UI exits is canceled.
func Run(ctx context.Context, controller Controller, opts ...Option) error {
	m := NewModel(ctx, controller, opts...)
	defer m.Close()

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if cancelErr := controller.Cancel(); cancelErr == nil {
		logx.NewLogger("tui").Info("🛑 Canceled in-flight run on exit")
	}
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	return nil
}
