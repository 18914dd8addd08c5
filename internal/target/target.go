// Package target implements the Target handle (spec §3): the abstract
// identity of one simulator or device, its lifecycle state machine, and
// its capability tag set. Grounded on the teacher's internal/services
// state machine (ServiceState/HealthStatus) generalized from a service's
// running/stopped lifecycle to the richer simulator/device lifecycle
// spec.md requires.
package target

import (
	"sync"

	"idbcore/internal/coreerr"
)

// LifecycleState enumerates every state a Target may occupy. The zero
// value is StateUnknown so an uninitialized Target is never mistaken for
// "shutdown".
type LifecycleState int

const (
	StateUnknown LifecycleState = iota
	StateCreating
	StateShutdown
	StateBooting
	StateBooted
	StateShuttingDown
	StateDFU
	StateRecovery
	StateRestoreOS
)

func (s LifecycleState) String() string {
	switch s {
	case StateCreating:
		return "creating"
	case StateShutdown:
		return "shutdown"
	case StateBooting:
		return "booting"
	case StateBooted:
		return "booted"
	case StateShuttingDown:
		return "shutting-down"
	case StateDFU:
		return "dfu"
	case StateRecovery:
		return "recovery"
	case StateRestoreOS:
		return "restore-os"
	default:
		return "unknown"
	}
}

// Kind distinguishes a simulator, a physical device, or the local host
// acting as its own target.
type Kind int

const (
	KindUnknown Kind = iota
	KindSimulator
	KindDevice
	KindLocalMac
)

func (k Kind) String() string {
	switch k {
	case KindSimulator:
		return "simulator"
	case KindDevice:
		return "device"
	case KindLocalMac:
		return "local-mac"
	default:
		return "unknown"
	}
}

// allowedTransitions enumerates the only state transitions a Target may
// make (spec §3 invariant: "never skips 'booting' when going from
// shutdown to booted"). StateUnknown is the initial/creating state and
// may transition to anything observed from the platform.
var allowedTransitions = map[LifecycleState]map[LifecycleState]bool{
	StateUnknown:      {StateCreating: true, StateShutdown: true, StateBooted: true, StateBooting: true, StateDFU: true, StateRecovery: true, StateRestoreOS: true},
	StateCreating:     {StateShutdown: true},
	StateShutdown:     {StateBooting: true, StateDFU: true, StateRecovery: true, StateRestoreOS: true},
	StateBooting:      {StateBooted: true, StateShutdown: true},
	StateBooted:       {StateShuttingDown: true},
	StateShuttingDown: {StateShutdown: true},
	StateDFU:          {StateRecovery: true, StateRestoreOS: true, StateShutdown: true},
	StateRecovery:     {StateDFU: true, StateRestoreOS: true, StateShutdown: true},
	StateRestoreOS:    {StateShutdown: true, StateBooting: true},
}

// Target is an abstract handle identifying one simulator or device
// (spec §3). Its lifecycle state is mutated only by the component
// responsible for boot/shutdown (spec §5: "a target is shared by
// multiple capability implementations but mutated only by its lifecycle
// component"); every other reader goes through State()/Capabilities().
type Target struct {
	udid         string
	kind         Kind
	osVersion    string
	mu           sync.RWMutex
	state        LifecycleState
	capabilities map[string]bool
}

// New constructs a Target in StateUnknown with the given identity.
func New(udid string, kind Kind, osVersion string, capabilities ...string) *Target {
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	return &Target{
		udid:         udid,
		kind:         kind,
		osVersion:    osVersion,
		state:        StateUnknown,
		capabilities: caps,
	}
}

func (t *Target) UDID() string      { return t.udid }
func (t *Target) Kind() Kind        { return t.kind }
func (t *Target) OSVersion() string { return t.osVersion }

func (t *Target) State() LifecycleState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// HasCapability reports whether the target advertises the given
// capability identifier (used by CommandForwarder to validate dispatch).
func (t *Target) HasCapability(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.capabilities[id]
}

// Capabilities returns a snapshot of every capability tag the target
// currently advertises.
func (t *Target) Capabilities() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.capabilities))
	for c := range t.capabilities {
		out = append(out, c)
	}
	return out
}

// SetCapabilities replaces the target's capability tag set, e.g. after a
// lifecycle component reconnects and re-probes the target.
func (t *Target) SetCapabilities(capabilities []string) {
	caps := make(map[string]bool, len(capabilities))
	for _, c := range capabilities {
		caps[c] = true
	}
	t.mu.Lock()
	t.capabilities = caps
	t.mu.Unlock()
}

// Transition moves the target to next, failing with KindTargetLifecycle
// if next is not reachable from the current state (spec §3 invariant).
func (t *Target) Transition(next LifecycleState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == next {
		return nil
	}
	allowed, known := allowedTransitions[t.state]
	if !known || !allowed[next] {
		return coreerr.New(coreerr.KindTargetLifecycle, "target.Transition",
			"invalid transition from %s to %s", t.state, next)
	}
	t.state = next
	return nil
}
