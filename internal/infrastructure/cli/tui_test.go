package cli

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	aiadapter "github.com/felixgeelhaar/milestone/pkg/ai"
	"github.com/felixgeelhaar/milestone/pkg/application"
	"github.com/felixgeelhaar/milestone/pkg/domain/roadmap"
	"github.com/felixgeelhaar/milestone/pkg/storage"
)

func tuiSnapshot() roadmap.Snapshot {
	return roadmap.Snapshot{
		{ID: 1, Name: "Auth", Priority: roadmap.PriorityP1, Effort: 5, IsOpen: true, Subtasks: []roadmap.SubTask{
			{ID: "1-1", Name: "Login"},
			{ID: "1-2", Name: "Password reset"},
		}},
		{ID: 2, Name: "Workouts", Priority: roadmap.PriorityP1, Effort: 8, Subtasks: []roadmap.SubTask{
			{ID: "2-1", Name: "Log sets"},
		}},
		{ID: 3, Name: "Social", Priority: roadmap.PriorityP2, Effort: 3, Subtasks: []roadmap.SubTask{
			{ID: "3-1", Name: "Share workout"},
		}},
	}
}

func newTestTUI(t *testing.T, advisory *application.AdvisoryService) (tuiModel, *application.SyncController) {
	t.Helper()
	ctrl, err := application.NewSyncController(nil, storage.NewFileStore(t.TempDir(), nil), application.SyncOptions{})
	if err != nil {
		t.Fatalf("NewSyncController: %v", err)
	}
	t.Cleanup(ctrl.Close)
	ctrl.Replace(tuiSnapshot())
	return newTUIModel(ctrl, advisory), ctrl
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m tuiModel, msgs ...tea.Msg) (tuiModel, tea.Cmd) {
	var cmd tea.Cmd
	for _, msg := range msgs {
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(tuiModel)
	}
	return m, cmd
}

func TestTUIModel_Rows(t *testing.T) {
	m, _ := newTestTUI(t, nil)

	// Auth is expanded, the others are not.
	want := []row{{taskID: 1}, {1, "1-1"}, {1, "1-2"}, {taskID: 2}, {taskID: 3}}
	if len(m.rows) != len(want) {
		t.Fatalf("rows = %+v", m.rows)
	}
	for i := range want {
		if m.rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, m.rows[i], want[i])
		}
	}
}

func TestTUIModel_ToggleSubtask(t *testing.T) {
	m, ctrl := newTestTUI(t, nil)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeySpace})
	if m.cursor != 1 {
		t.Fatalf("cursor = %d", m.cursor)
	}
	if m.view.Stats.CompletedSubtasks != 1 {
		t.Errorf("view not updated: %+v", m.view.Stats)
	}
	task, _ := ctrl.Snapshot().FindTask(1)
	if !task.Subtasks[0].Completed {
		t.Error("toggle did not reach the controller")
	}
	if !strings.Contains(m.View(), "[x] Login") {
		t.Errorf("completed subtask not rendered:\n%s", m.View())
	}
}

func TestTUIModel_ToggleAccordion(t *testing.T) {
	m, _ := newTestTUI(t, nil)

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.rows) != 3 {
		t.Fatalf("collapsing Auth should hide its subtasks, rows = %+v", m.rows)
	}

	m, _ = press(m, runes("j"), runes("j"), tea.KeyMsg{Type: tea.KeyEnter})
	if len(m.rows) != 4 || m.rows[3] != (row{3, "3-1"}) {
		t.Fatalf("expanding Social should show its subtask, rows = %+v", m.rows)
	}
}

func TestTUIModel_CursorBounds(t *testing.T) {
	m, _ := newTestTUI(t, nil)

	m, _ = press(m, runes("k"))
	if m.cursor != 0 {
		t.Errorf("cursor moved above the first row: %d", m.cursor)
	}
	for i := 0; i < 10; i++ {
		m, _ = press(m, runes("j"))
	}
	if m.cursor != len(m.rows)-1 {
		t.Errorf("cursor = %d, want %d", m.cursor, len(m.rows)-1)
	}
}

func TestTUIModel_Filter(t *testing.T) {
	m, _ := newTestTUI(t, nil)

	m, _ = press(m, runes("/"), runes("share"))
	if !m.filtering {
		t.Fatal("expected filter mode")
	}
	if len(m.rows) != 2 || m.rows[0] != (row{taskID: 3}) || m.rows[1] != (row{3, "3-1"}) {
		t.Fatalf("filter rows = %+v", m.rows)
	}

	// Keys go to the filter while it is focused.
	m, _ = press(m, runes("q"))
	if m.filter.Value() != "shareq" {
		t.Errorf("filter value = %q", m.filter.Value())
	}

	m, _ = press(m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.filtering || m.filter.Value() != "" || len(m.rows) != 5 {
		t.Errorf("esc should clear the filter, rows = %+v", m.rows)
	}
}

func TestTUIModel_DropsStaleViews(t *testing.T) {
	m, ctrl := newTestTUI(t, nil)
	current := m.view.Revision

	stale := ctrl.View()
	stale.Revision = current - 1
	stale.Snapshot = nil
	m, _ = press(m, viewMsg(stale))
	if m.view.Revision != current || len(m.rows) == 0 {
		t.Fatal("stale view was adopted")
	}

	ctrl.ToggleSubtask(2, "2-1")
	m, _ = press(m, viewMsg(ctrl.View()))
	if m.view.Revision <= current || m.view.Stats.CompletedSubtasks != 1 {
		t.Errorf("newer view not adopted: rev %d stats %+v", m.view.Revision, m.view.Stats)
	}
}

func TestTUIModel_Advise(t *testing.T) {
	provider := &aiadapter.MockProvider{Model: "m", Reply: "Ship the login flow."}
	m, _ := newTestTUI(t, application.NewAdvisoryService(provider, "", nil))

	m, cmd := press(m, runes("a"))
	if !m.advising || cmd == nil {
		t.Fatal("expected an advisory command")
	}
	m, _ = press(m, cmd())
	if m.advising || m.advice != "Ship the login flow." {
		t.Errorf("advice = %q", m.advice)
	}
	if !strings.Contains(m.View(), "Ship the login flow.") {
		t.Error("advice not rendered")
	}
}

func TestTUIModel_AdviseWithoutService(t *testing.T) {
	m, _ := newTestTUI(t, nil)
	if _, cmd := press(m, runes("a")); cmd != nil {
		t.Error("no command expected without an advisory service")
	}
}

func TestTUIModel_Sync(t *testing.T) {
	m, _ := newTestTUI(t, nil)

	m, cmd := press(m, runes("r"))
	if cmd == nil {
		t.Fatal("expected a sync command")
	}
	m, _ = press(m, cmd())
	if m.syncErr != nil {
		t.Errorf("standalone sync failed: %v", m.syncErr)
	}
}

func TestTUIModel_Quit(t *testing.T) {
	m, _ := newTestTUI(t, nil)
	_, cmd := press(m, runes("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}

func TestTUIModel_View(t *testing.T) {
	m, _ := newTestTUI(t, nil)
	out := m.View()
	for _, want := range []string{"Roadmap", "synced", "P1 - Core (MVP)", "P2 - Retention & Social", "Auth", "Password reset", "0%"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}
