package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/wippyai/pinbridge/bridge"
	"github.com/wippyai/pinbridge/config"
	"github.com/wippyai/pinbridge/preserve"
	"github.com/wippyai/pinbridge/trace"
)

const maxEvents = 12

// eventLog keeps the most recent pin events for display.
type eventLog struct {
	events []preserve.Event
	mu     sync.Mutex
}

func (l *eventLog) OnPinEvent(e preserve.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	if len(l.events) > maxEvents {
		l.events = l.events[len(l.events)-maxEvents:]
	}
}

func (l *eventLog) recent() []preserve.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]preserve.Event, len(l.events))
	copy(out, l.events)
	return out
}

type interactiveModel struct {
	err      error
	bridge   *bridge.Bridge
	replayer *trace.Replayer
	events   *eventLog
	closeFn  func() error
	input    textinput.Model
	result   string
	backend  string
	seen     int
	showHelp bool
}

func newInteractiveModel(b *bridge.Bridge, backend string, closeFn func() error) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "alloc x double"
	ti.Prompt = "> "
	ti.Width = 60
	ti.Focus()

	events := &eventLog{}
	b.Subscribe(events)

	return &interactiveModel{
		bridge:   b,
		replayer: trace.NewReplayer(b, nil),
		events:   events,
		closeFn:  closeFn,
		input:    ti,
		backend:  backend,
	}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "ctrl+c", "esc":
			m.bridge.Unsubscribe(m.events)
			_ = m.bridge.Close()
			if m.closeFn != nil {
				_ = m.closeFn()
			}
			return m, tea.Quit

		case "?":
			if m.input.Value() == "" {
				m.showHelp = !m.showHelp
				return m, nil
			}

		case "enter":
			m.exec(m.input.Value())
			m.input.SetValue("")
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// exec runs one command line against the bridge.
func (m *interactiveModel) exec(line string) {
	m.err = nil
	m.result = ""
	if strings.TrimSpace(line) == "" {
		return
	}

	st, err := parseCommand(line)
	if err != nil {
		m.err = err
		return
	}
	rep, err := m.replayer.Run(&trace.Script{Steps: []trace.Step{st}})
	if err != nil {
		m.err = err
		return
	}
	m.result = "ok"
	if fresh := rep.Destroyed[m.seen:]; len(fresh) > 0 {
		m.result = "ok, destroyed " + strings.Join(fresh, ", ")
	}
	m.seen = len(rep.Destroyed)
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("pinstat"))
	b.WriteString(" ")
	b.WriteString(m.backend)
	b.WriteString("\n\n")

	b.WriteString(renderTable("Protected", m.bridge.Protected()))
	b.WriteString("\n")
	b.WriteString(renderTable("Externals", m.bridge.Externals()))
	b.WriteString("\n\n")

	for _, e := range m.events.recent() {
		fmt.Fprintf(&b, "%-9s %s count=%d\n", e.Type, idStyle.Render(e.Identity.String()), e.Count)
	}
	b.WriteString("\n")

	b.WriteString(m.input.View())
	b.WriteString("\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
	case m.result != "":
		b.WriteString(okStyle.Render(m.result))
	}
	b.WriteString("\n\n")

	if m.showHelp {
		b.WriteString(helpStyle.Render(strings.Join(commandUsage, "\n")))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter run • ? commands • esc quit"))
	return b.String()
}

func runInteractive(cfg *config.Config) error {
	ctx := context.Background()

	log, err := cfg.Logger()
	if err != nil {
		return err
	}
	// The TUI owns the terminal; only errors are worth interleaving.
	log = log.WithOptions(zap.IncreaseLevel(zap.ErrorLevel))

	foreign, closeForeign, err := openForeign(ctx, &cfg.Foreign, log)
	if err != nil {
		return err
	}
	b, err := bridge.New(cfg.BridgeConfig(foreign, log.Named("bridge")))
	if err != nil {
		_ = closeForeign()
		return err
	}

	p := tea.NewProgram(newInteractiveModel(b, cfg.Foreign.Backend, closeForeign), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
