package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

func TestModelApplyTracksOpenSessions(t *testing.T) {
	m := NewModel(nil)

	m.apply(ServerEvent{Kind: ConnectionOpened, ConnID: "a", State: "WaitRoutingActivation", Timestamp: time.Now()})
	if len(m.order) != 1 {
		t.Fatalf("order len = %d, want 1", len(m.order))
	}

	m.apply(ServerEvent{Kind: StateChanged, ConnID: "a", State: "RoutingActivated", Timestamp: time.Now()})
	if m.sessions["a"].state != "RoutingActivated" {
		t.Fatalf("state = %s, want RoutingActivated", m.sessions["a"].state)
	}

	m.apply(ServerEvent{Kind: ConnectionClosed, ConnID: "a", State: "Closed", Timestamp: time.Now()})
	if _, ok := m.sessions["a"]; ok {
		t.Fatal("expected session to be removed after close event")
	}
	if len(m.order) != 0 {
		t.Fatalf("order len = %d, want 0 after close", len(m.order))
	}
}

func TestModelUpdateHandlesQuit(t *testing.T) {
	m := NewModel(nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected a tea.Quit command")
	}
}

func TestModelUpdateAppliesEventMsg(t *testing.T) {
	m := NewModel(nil)
	updated, _ := m.Update(eventMsg(ServerEvent{Kind: ConnectionOpened, ConnID: "b", State: "WaitRoutingActivation", Timestamp: time.Now()}))
	next := updated.(Model)
	if _, ok := next.sessions["b"]; !ok {
		t.Fatal("expected session b to be tracked after eventMsg")
	}
}

func TestModelCopySelectedDetailNoSelection(t *testing.T) {
	m := NewModel(nil)
	if cmd := m.copySelectedDetail(); cmd != nil {
		t.Fatal("expected nil command with no sessions")
	}
}

func TestModelViewRendersHeaderAndEmptyState(t *testing.T) {
	m := NewModel(nil)
	view := m.View()
	if view == "" {
		t.Fatal("expected non-empty view")
	}
}
