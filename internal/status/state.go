package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/wpp-bridge/internal/bus"
)

// State represents the WhatsApp transport connection state.
type State string

const (
	Booting      State = "BOOTING"
	Pairing      State = "PAIRING"
	Connecting   State = "CONNECTING"
	Connected    State = "CONNECTED"
	Reconnecting State = "RECONNECTING"
	LoggedOut    State = "LOGGED_OUT"
	Failed       State = "FAILED"
)

// validTransitions defines allowed state transitions.
var validTransitions = map[State][]State{
	Booting:      {Pairing, Connecting, Failed},
	Pairing:      {Connecting, Connected, Failed},
	Connecting:   {Connected, Pairing, Reconnecting, LoggedOut, Failed},
	Connected:    {Reconnecting, LoggedOut, Failed},
	Reconnecting: {Connecting, Connected, LoggedOut, Failed},
	LoggedOut:    {Pairing, Failed},
	Failed:       {Booting, Connecting},
}

// Machine tracks and enforces transport state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Connected reports whether the transport can currently deliver messages.
func (m *Machine) Connected() bool {
	return m.Current() == Connected
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
// Transitioning to the current state is a no-op.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == to {
		return nil
	}
	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	if m.bus != nil {
		m.bus.Publish(bus.NewEvent(bus.KindStatusChanged, StatusChange{From: from, To: to}))
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}
