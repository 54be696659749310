package dialog

import (
	"sync"
	"time"
)

// Kind identifies which dialog is active. A single tagged value replaces the
// N independent open booleans the naive modeling would use, so two dialogs
// can never be addressable at once.
type Kind int

const (
	None Kind = iota
	Creating
	Viewing
	Scheduling
)

func (k Kind) String() string {
	switch k {
	case Creating:
		return "creating"
	case Viewing:
		return "viewing"
	case Scheduling:
		return "scheduling"
	}
	return "none"
}

// State is the active dialog plus its selection. ItemID is set for Viewing
// and Scheduling; TargetDate only for Scheduling.
type State struct {
	Kind       Kind
	ItemID     string
	TargetDate time.Time
}

// Machine tracks which item is selected and which dialog drives it. Opening
// any dialog replaces whatever was active; confirm/cancel/close always
// returns to None.
type Machine struct {
	mu    sync.Mutex
	state State
}

func NewMachine() *Machine {
	return &Machine{}
}

// Current returns the active dialog state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OpenCreate activates the creation dialog, clearing any selection.
func (m *Machine) OpenCreate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Kind: Creating}
}

// OpenView selects an item for the detail view.
func (m *Machine) OpenView(itemID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Kind: Viewing, ItemID: itemID}
}

// OpenSchedule selects an item and a target day for time confirmation.
func (m *Machine) OpenSchedule(itemID string, targetDate time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Kind: Scheduling, ItemID: itemID, TargetDate: targetDate}
}

// Close ends whatever dialog is active. Used for confirm, cancel and close
// alike; they differ only in the side effects the caller runs first.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = State{Kind: None}
}

// TakeScheduling returns and clears the scheduling selection, failing when no
// schedule dialog is active. Confirm handlers use it so a race with a close
// cannot schedule against a cleared selection.
func (m *Machine) TakeScheduling() (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Kind != Scheduling {
		return State{}, false
	}
	s := m.state
	m.state = State{Kind: None}
	return s, true
}
