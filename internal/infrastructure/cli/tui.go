package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:     "tui",
	Aliases: []string{"dashboard"},
	Short:   "Interactive roadmap view that stays in sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("MILESTONE_SKIP_TUI_RUN") == "true" {
			return nil
		}

		services, err := startServices(cmd.Context())
		if err != nil {
			return err
		}
		defer finish(services)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()
		go func() { _ = services.Sync.Run(ctx) }()

		p := tea.NewProgram(newTUIModel(services.Sync, services.Advisory), tea.WithAltScreen())
		// Send blocks until the program reads the message, so never call it
		// on the goroutine that runs Update.
		unsubscribe := services.Sync.Subscribe(func(v application.View) {
			go p.Send(viewMsg(v))
		})
		defer unsubscribe()

		if _, err := p.Run(); err != nil {
			return fmt.Errorf("tui run failed: %w", err)
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(tuiCmd)
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			PaddingLeft(1).
			PaddingRight(1)
	groupStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4")).MarginTop(1)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	syncingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	offlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	barFillStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	adviceStyle   = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

type tuiKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	Sync   key.Binding
	Advise key.Binding
	Filter key.Binding
	Quit   key.Binding
}

func (k tuiKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Sync, k.Advise, k.Filter, k.Quit}
}

func (k tuiKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultKeys = tuiKeyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Toggle: key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("space", "toggle")),
	Sync:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "sync")),
	Advise: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "advise")),
	Filter: key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

type viewMsg application.View

type syncDoneMsg struct{ err error }

type adviceMsg application.Advice

// row is one selectable line: a task, or a subtask of an expanded task.
type row struct {
	taskID    int
	subtaskID string
}

func (r row) isSubtask() bool { return r.subtaskID != "" }

type tuiModel struct {
	controller *application.SyncController
	advisory   *application.AdvisoryService

	view      application.View
	rows      []row
	cursor    int
	spinner   spinner.Model
	filter    textinput.Model
	filtering bool
	keys      tuiKeyMap
	help      help.Model
	advice    string
	advising  bool
	syncErr   error
}

func newTUIModel(controller *application.SyncController, advisory *application.AdvisoryService) tuiModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = syncingStyle

	ti := textinput.New()
	ti.Placeholder = "filter tasks"
	ti.Prompt = "/ "
	ti.CharLimit = 64

	m := tuiModel{
		controller: controller,
		advisory:   advisory,
		view:       controller.View(),
		spinner:    s,
		filter:     ti,
		keys:       defaultKeys,
		help:       help.New(),
	}
	m.rebuildRows()
	return m
}

func (m tuiModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *tuiModel) adopt(v application.View) {
	if v.Revision <= m.view.Revision {
		return
	}
	m.view = v
	m.rebuildRows()
}

func (m *tuiModel) rebuildRows() {
	query := strings.ToLower(strings.TrimSpace(m.filter.Value()))
	groups := m.view.Groups()

	m.rows = m.rows[:0]
	for _, p := range roadmap.AllPriorities() {
		for _, t := range groups[p] {
			taskMatch := query == "" || strings.Contains(strings.ToLower(t.Name), query)
			var subs []row
			for _, st := range t.Subtasks {
				subMatch := query != "" && strings.Contains(strings.ToLower(st.Name), query)
				if (t.IsOpen && (taskMatch || query == "")) || subMatch {
					subs = append(subs, row{taskID: t.ID, subtaskID: st.ID})
				}
			}
			if !taskMatch && len(subs) == 0 {
				continue
			}
			m.rows = append(m.rows, row{taskID: t.ID})
			m.rows = append(m.rows, subs...)
		}
	}

	if m.cursor >= len(m.rows) {
		m.cursor = len(m.rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m tuiModel) selected() (row, bool) {
	if len(m.rows) == 0 {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case viewMsg:
		m.adopt(application.View(msg))
		return m, nil

	case syncDoneMsg:
		m.syncErr = msg.err
		m.adopt(m.controller.View())
		return m, nil

	case adviceMsg:
		m.advising = false
		m.advice = msg.Text
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m tuiModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filtering = false
		m.filter.Blur()
		m.filter.SetValue("")
		m.rebuildRows()
		return m, nil
	case tea.KeyEnter:
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.rebuildRows()
	return m, cmd
}

func (m tuiModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}

	case key.Matches(msg, m.keys.Toggle):
		r, ok := m.selected()
		if !ok {
			return m, nil
		}
		if r.isSubtask() {
			m.adopt(m.controller.ToggleSubtask(r.taskID, r.subtaskID))
		} else {
			m.adopt(m.controller.ToggleAccordion(r.taskID))
		}

	case key.Matches(msg, m.keys.Sync):
		controller := m.controller
		return m, func() tea.Msg {
			return syncDoneMsg{err: controller.ForceSync(context.Background())}
		}

	case key.Matches(msg, m.keys.Advise):
		if m.advisory == nil || m.advising {
			return m, nil
		}
		m.advising = true
		m.advice = ""
		advisory, snap := m.advisory, m.view.Snapshot
		return m, func() tea.Msg {
			return adviceMsg(advisory.Advise(context.Background(), snap))
		}

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		return m, m.filter.Focus()
	}
	return m, nil
}

func renderBar(pct, width int) string {
	filled := pct * width / 100
	return barFillStyle.Render(strings.Repeat("█", filled)) + barEmptyStyle.Render(strings.Repeat("░", width-filled))
}

func (m tuiModel) statusBadge() string {
	switch {
	case m.view.Syncing() && m.view.Offline():
		return m.spinner.View() + offlineStyle.Render(" retrying")
	case m.view.Syncing():
		return m.spinner.View() + syncingStyle.Render(" syncing")
	case m.view.Offline():
		return offlineStyle.Render("● offline")
	default:
		return doneStyle.Render("● synced")
	}
}

func (m tuiModel) View() string {
	var b strings.Builder

	s := m.view.Stats
	b.WriteString(titleStyle.Render("Roadmap") + "  " + m.statusBadge() + "\n\n")
	fmt.Fprintf(&b, "%s %d%%  %s\n", renderBar(s.Percentage, 30), s.Percentage,
		mutedStyle.Render(fmt.Sprintf("%d/%d subtasks, %d to go", s.CompletedSubtasks, s.TotalSubtasks, s.Remaining())))
	if m.syncErr != nil {
		b.WriteString(offlineStyle.Render("last sync failed: "+m.syncErr.Error()) + "\n")
	}

	lastPriority := roadmap.Priority("")
	for i, r := range m.rows {
		task, _ := m.view.Snapshot.FindTask(r.taskID)
		if !r.isSubtask() && task.Priority != lastPriority {
			lastPriority = task.Priority
			b.WriteString(groupStyle.Render(task.Priority.DisplayName()) + "\n")
		}

		pointer := "  "
		if i == m.cursor {
			pointer = cursorStyle.Render("> ")
		}

		if r.isSubtask() {
			for _, st := range task.Subtasks {
				if st.ID != r.subtaskID {
					continue
				}
				line := "[ ] " + st.Name
				if st.Completed {
					line = doneStyle.Render("[x] " + st.Name)
				}
				b.WriteString(pointer + "    " + line + "\n")
			}
			continue
		}

		ts := task.Stats()
		arrow := "▸"
		if task.IsOpen {
			arrow = "▾"
		}
		name := task.Name
		if ts.TotalSubtasks > 0 && ts.CompletedSubtasks == ts.TotalSubtasks {
			name = doneStyle.Render(name)
		}
		fmt.Fprintf(&b, "%s%s %s %s\n", pointer, arrow, name,
			mutedStyle.Render(fmt.Sprintf("%d/%d · effort %d", ts.CompletedSubtasks, ts.TotalSubtasks, task.Effort)))
	}

	if m.advising {
		b.WriteString("\n" + m.spinner.View() + " asking the advisor...\n")
	} else if m.advice != "" {
		b.WriteString("\n" + adviceStyle.Render(m.advice) + "\n")
	}

	b.WriteString("\n")
	if m.filtering || m.filter.Value() != "" {
		b.WriteString(m.filter.View() + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String() + "\n"
}
