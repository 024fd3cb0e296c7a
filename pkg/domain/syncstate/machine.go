// Package syncstate models the replication status shown next to the roadmap.
package syncstate

import (
	"fmt"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// State is the tagged replication status.
type State string

// State values double as statekit state ids.
const (
	StateIdle      = "idle"
	StateSyncing   = "syncing"
	StateOffline   = "offline"
	StateResyncing = "resyncing"
)

// Events fed to the machine by the controller.
// The *_pending variants report a completion while other pushes are still in flight.
const (
	EventPush        = "push"
	EventOK          = "ok"
	EventOKPending   = "ok_pending"
	EventFail        = "fail"
	EventFailPending = "fail_pending"
)

// Idle, Syncing, Offline and Resyncing are the typed forms of the state ids.
const (
	Idle      State = StateIdle
	Syncing   State = StateSyncing
	Offline   State = StateOffline
	Resyncing State = StateResyncing
)

// IsSyncing reports whether a push is in flight.
func (s State) IsSyncing() bool {
	return s == Syncing || s == Resyncing
}

// IsOffline reports whether the last completed operation failed.
func (s State) IsOffline() bool {
	return s == Offline || s == Resyncing
}

// Label is the short status shown by the views.
func (s State) Label() string {
	switch s {
	case Idle:
		return "synced"
	case Syncing:
		return "syncing"
	case Offline:
		return "offline"
	case Resyncing:
		return "retrying"
	default:
		return string(s)
	}
}

type machineContext struct{}

// Machine is a concurrency-safe wrapper around the statekit interpreter.
type Machine struct {
	mu          sync.Mutex
	interpreter *statekit.Interpreter[machineContext]
}

// NewMachine builds the machine in the idle state.
func NewMachine() (*Machine, error) {
	return newMachine(StateIdle)
}

func newMachine(initial string) (*Machine, error) {
	builder := statekit.NewMachine[machineContext]("sync-machine").
		WithInitial(statekit.StateID(initial)).
		WithContext(machineContext{})

	builder.State(StateIdle).
		On(EventPush).Target(StateSyncing).
		On(EventFail).Target(StateOffline).
		Done()

	builder.State(StateSyncing).
		On(EventOK).Target(StateIdle).
		On(EventFail).Target(StateOffline).
		On(EventFailPending).Target(StateResyncing).
		Done()

	builder.State(StateOffline).
		On(EventPush).Target(StateResyncing).
		On(EventOK).Target(StateIdle).
		Done()

	builder.State(StateResyncing).
		On(EventOK).Target(StateIdle).
		On(EventOKPending).Target(StateSyncing).
		On(EventFail).Target(StateOffline).
		Done()

	machine, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build sync state machine: %w", err)
	}

	interpreter := statekit.NewInterpreter(machine)
	interpreter.Start()

	return &Machine{interpreter: interpreter}, nil
}

// Fire sends an event and returns the resulting state. Events with no
// transition from the current state leave it unchanged.
func (m *Machine) Fire(event string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interpreter.Send(statekit.Event{Type: statekit.EventType(event)})
	return State(m.interpreter.State().Value)
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State(m.interpreter.State().Value)
}

// Completion picks the event for a finished fetch or push.
func Completion(ok bool, pending int) string {
	switch {
	case ok && pending > 0:
		return EventOKPending
	case ok:
		return EventOK
	case pending > 0:
		return EventFailPending
	default:
		return EventFail
	}
}
