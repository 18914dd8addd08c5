// Package commandrouter implements the command forwarder and
// long-running process plumbing (spec §4.5): a dynamic dispatch table
// from capability identifier to the component implementing it against
// a specific target, plus the launched-process/termination-strategy
// types that capability implementations return. Grounded on the
// teacher's internal/capability/manager.go name-keyed definition table
// (restructured here as a factory table rather than a YAML-backed
// store, since capabilities are Go-native implementations, not
// declarative definitions) and internal/services/registry.go's
// memoized-vs-transient instance handling.
package commandrouter

import (
	"fmt"
	"sync"

	"idbcore/internal/coreerr"
	"idbcore/internal/target"
	"idbcore/pkg/logging"
)

var log = logging.NewNamed("commandrouter")

// CapabilityID identifies a single capability contract (install app,
// spawn process, tail log, start recording, list crashes, ...).
type CapabilityID string

// Capability is the contract a target capability implementation
// satisfies. Implementations type-assert to their richer interface
// (e.g. a ProcessSpawner) after lookup; Forwarder only needs to know
// how to construct and, for stateful capabilities, retain one.
type Capability interface {
	ID() CapabilityID
}

// Factory constructs a Capability implementation bound to t.
type Factory func(t *target.Target) (Capability, error)

// registration pairs a factory with whether its product should be
// memoized for the forwarder's lifetime.
type registration struct {
	factory  Factory
	stateful bool
}

// Forwarder owns a target and a set of registered capability
// factories. Lookup by capability id returns either the memoized
// stateful implementation or a freshly constructed stateless one.
type Forwarder struct {
	target *target.Target

	mu          sync.Mutex
	registry    map[CapabilityID]registration
	instantiated map[CapabilityID]Capability
}

// NewForwarder constructs a Forwarder bound to t with no capabilities
// registered yet.
func NewForwarder(t *target.Target) *Forwarder {
	return &Forwarder{
		target:       t,
		registry:     make(map[CapabilityID]registration),
		instantiated: make(map[CapabilityID]Capability),
	}
}

// Register adds a capability factory. stateful capabilities are built
// once and memoized; stateless ones are constructed fresh on every
// Dispatch call.
func (f *Forwarder) Register(id CapabilityID, stateful bool, factory Factory) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registry[id] = registration{factory: factory, stateful: stateful}
}

// Dispatch resolves id to its Capability implementation for this
// forwarder's target, constructing (and, if stateful, memoizing) it on
// demand.
func (f *Forwarder) Dispatch(id CapabilityID) (Capability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	reg, ok := f.registry[id]
	if !ok {
		return nil, coreerr.New(coreerr.KindNotFound, "commandrouter.Dispatch", "no capability registered for %q", id)
	}

	if reg.stateful {
		if existing, ok := f.instantiated[id]; ok {
			return existing, nil
		}
	}

	cap, err := reg.factory(f.target)
	if err != nil {
		return nil, coreerr.Wrap(coreerr.KindPrecondition, "commandrouter.Dispatch", err, "failed to construct capability %q", id)
	}

	if reg.stateful {
		f.instantiated[id] = cap
		log.Debug("memoized stateful capability %q for target %s", id, f.target.UDID())
	}
	return cap, nil
}

// Target returns the target this forwarder dispatches against.
func (f *Forwarder) Target() *target.Target { return f.target }

// Capabilities lists every registered capability id, for diagnostics.
func (f *Forwarder) Capabilities() []CapabilityID {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]CapabilityID, 0, len(f.registry))
	for id := range f.registry {
		ids = append(ids, id)
	}
	return ids
}

func (id CapabilityID) String() string { return fmt.Sprintf("capability(%s)", string(id)) }
