// Package keywatch shows batch progress in the terminal and turns a stop key
// into cancellation of the batch.
//
// The monitor is the only producer of the batch's cancellation: pressing q,
// Esc or Ctrl-C calls the cancel function once. It never touches documents;
// the batch feeds it file results and it only renders them.
package keywatch

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
)

// FileDone reports one finished document to the monitor.
type FileDone struct {
	Name       string
	Mismatches int
	Failed     bool
}

// startedMsg carries the number of documents in the batch.
type startedMsg struct{ total int }

// stopMsg ends the program once the batch has returned.
type stopMsg struct{}

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FAFD7"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF005F")).Bold(true)
	hintStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C6C6C")).Italic(true)
)

// model is the bubbletea model for batch progress.
type model struct {
	progress progress.Model
	total    int
	done     int
	failed   int
	last     string
	stopping bool
	finished bool
	trigger  func()
}

func newModel(trigger func()) model {
	return model{
		progress: progress.New(
			progress.WithDefaultBlend(),
			progress.WithWidth(40),
		),
		trigger: trigger,
	}
}

// Init starts the progress bar.
func (m model) Init() tea.Cmd {
	return m.progress.Init()
}

// Update handles key presses and batch events.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if isStopKey(msg.String()) && !m.stopping {
			m.stopping = true
			m.trigger()
		}

	case startedMsg:
		m.total = msg.total

	case FileDone:
		m.done++
		m.last = msg.Name
		if msg.Failed {
			m.failed++
		}

	case stopMsg:
		m.finished = true
		return m, tea.Quit

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m model) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m model) renderContent() string {
	if m.finished {
		return ""
	}

	var pct float64
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}

	state := "running"
	if m.stopping {
		state = "stopping"
	}
	out := fmt.Sprintf("%s %s %d/%d files",
		statusStyle.Render("["+state+"]"), m.progress.ViewAs(pct), m.done, m.total)
	if m.failed > 0 {
		out += " " + errorStyle.Render(fmt.Sprintf("(%d failed)", m.failed))
	}
	out += "\n"
	if m.last != "" {
		out += hintStyle.Render("last: "+m.last) + "\n"
	}
	if m.stopping {
		out += hintStyle.Render("Finishing the current file, then stopping") + "\n"
	} else {
		out += hintStyle.Render("Press q or Esc to stop after the current file") + "\n"
	}
	return out
}

func isStopKey(key string) bool {
	switch key {
	case "q", "Q", "esc", "ctrl+c":
		return true
	}
	return false
}

// Monitor runs the progress program while a batch runs.
type Monitor struct {
	program   *tea.Program
	triggered atomic.Bool
	done      chan struct{}
	err       error
	stopOnce  sync.Once
}

// Start runs the progress program in the background. cancel is called at
// most once, when a stop key is pressed. The program reads keys from stdin
// unless opts say otherwise; signals are left to the caller.
func Start(cancel func(), logger *slog.Logger, opts ...tea.ProgramOption) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Monitor{done: make(chan struct{})}
	trigger := func() {
		if m.triggered.CompareAndSwap(false, true) {
			logger.Info("stop requested, finishing current file")
			cancel()
		}
	}

	opts = append([]tea.ProgramOption{tea.WithoutSignalHandler()}, opts...)
	m.program = tea.NewProgram(newModel(trigger), opts...)
	go func() {
		defer close(m.done)
		if _, err := m.program.Run(); err != nil {
			m.err = err
			logger.Debug("progress display ended", "error", err)
		}
	}()
	return m
}

// Started tells the monitor how many documents the batch will process.
func (m *Monitor) Started(total int) {
	m.program.Send(startedMsg{total: total})
}

// FileDone records one finished document.
func (m *Monitor) FileDone(f FileDone) {
	m.program.Send(f)
}

// Triggered reports whether a stop key was pressed.
func (m *Monitor) Triggered() bool {
	return m.triggered.Load()
}

// Stop ends the program and waits for it to restore the terminal. It is safe
// to call more than once and returns the error the program exited with.
func (m *Monitor) Stop() error {
	m.stopOnce.Do(func() {
		m.program.Send(stopMsg{})
		<-m.done
	})
	return m.err
}
