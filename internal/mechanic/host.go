package mechanic

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoActiveMechanic is returned by host operations that need a live
// mechanic when none is activated.
var ErrNoActiveMechanic = errors.New("no active mechanic")

// transitionLogCap bounds the in-memory transition log; older entries
// are dropped.
const transitionLogCap = 64

// Transition records one committed state change of the active mechanic.
type Transition struct {
	Mechanic string    `json:"mechanic"`
	Instance string    `json:"instance"`
	Phase    string    `json:"phase"`
	Complete bool      `json:"complete"`
	Failure  string    `json:"failure,omitempty"`
	At       time.Time `json:"at"`
}

// Host owns the single active mechanic. It activates fresh instances
// from the registry, carries each mechanic's settings across
// activations, forwards committed state changes to its own subscribers
// and keeps a short transition log for debugging.
//
// At most one mechanic is active; activating another one deactivates the
// current one first, and activating the same id again restarts it with a
// fresh instance.
type Host struct {
	deps Deps

	// mu serialises lifecycle operations end to end, including the
	// notifications they trigger. Host listeners therefore stick to the
	// read accessors (Active, Transitions and the mechanic's own
	// methods), which only take stateMu.
	mu sync.Mutex

	// stateMu guards the fields below. It is only held for field
	// access, never across mechanic calls.
	stateMu     sync.RWMutex
	active      Mechanic
	activeID    string
	instanceID  string
	detach      func()
	saved       map[string]map[string]interface{}
	transitions []Transition

	notifier Notifier
}

// NewHost builds a host around the given deps. The deps are the template
// every activated mechanic instance receives.
func NewHost(deps Deps) *Host {
	return &Host{
		deps:  deps.WithDefaults(),
		saved: make(map[string]map[string]interface{}),
	}
}

// Activate replaces the current mechanic, if any, with a fresh instance
// of the given one, re-applies the settings remembered for it and deals
// the first game. An unknown id leaves the current mechanic untouched.
func (h *Host) Activate(id string) (Manifest, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	inst, err := Create(id, h.deps)
	if err != nil {
		return Manifest{}, err
	}
	if saved, ok := h.savedSettings(id); ok {
		if err := inst.ApplySettings(saved); err != nil {
			h.deps.Logger.Warn("remembered settings rejected",
				zap.String("mechanic", id),
				zap.Error(err))
		}
	}

	prev, prevDetach := h.swap(inst, id)
	if prevDetach != nil {
		prevDetach()
	}
	if prev != nil {
		prev.Deactivate()
	}

	inst.Activate()
	inst.InitGame()

	h.deps.Logger.Info("mechanic activated",
		zap.String("mechanic", id),
		zap.String("instance", h.InstanceID()))
	return inst.Manifest(), nil
}

// Deactivate tears the active mechanic down. Calling it with nothing
// active is a no-op.
func (h *Host) Deactivate() {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev, prevDetach := h.swap(nil, "")
	if prevDetach != nil {
		prevDetach()
	}
	if prev == nil {
		return
	}
	prev.Deactivate()
	h.deps.Logger.Info("mechanic deactivated")
	h.notifier.Notify()
}

// swap installs inst as the active mechanic and returns the displaced
// one together with its forwarder detach func. The forwarder is wired
// before the instance deals anything, so no committed change is missed.
func (h *Host) swap(inst Mechanic, id string) (prev Mechanic, prevDetach func()) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	prev, prevDetach = h.active, h.detach
	h.active = inst
	h.activeID = id
	h.detach = nil
	h.instanceID = ""
	if inst != nil {
		h.instanceID = uuid.New().String()
		h.detach = inst.Subscribe(func() { h.forward(inst, id) })
	}
	return prev, prevDetach
}

// forward records a transition from the active mechanic and fans the
// change out to host subscribers. Laggard notifications from replaced
// instances are dropped.
func (h *Host) forward(inst Mechanic, id string) {
	st := inst.State()

	h.stateMu.Lock()
	if h.active != inst {
		h.stateMu.Unlock()
		return
	}
	h.transitions = append(h.transitions, Transition{
		Mechanic: id,
		Instance: h.instanceID,
		Phase:    st.Phase(),
		Complete: st.Complete(),
		Failure:  st.Failure(),
		At:       h.deps.Now(),
	})
	if len(h.transitions) > transitionLogCap {
		h.transitions = h.transitions[len(h.transitions)-transitionLogCap:]
	}
	h.stateMu.Unlock()

	h.notifier.Notify()
}

// Active returns the live mechanic and its activation instance id.
func (h *Host) Active() (m Mechanic, instanceID string, ok bool) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.active, h.instanceID, h.active != nil
}

// ActiveID returns the id of the active mechanic, or "".
func (h *Host) ActiveID() string {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.activeID
}

// InstanceID returns the activation id of the live instance, or "".
func (h *Host) InstanceID() string {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.instanceID
}

// Reset restarts the active mechanic's game.
func (h *Host) Reset() error {
	m, _, ok := h.Active()
	if !ok {
		return ErrNoActiveMechanic
	}
	m.Reset()
	return nil
}

// InitGame deals a fresh game on the active mechanic, honouring its
// sticky-completion behaviour.
func (h *Host) InitGame() error {
	m, _, ok := h.Active()
	if !ok {
		return ErrNoActiveMechanic
	}
	m.InitGame()
	return nil
}

// Subscribe registers a host-level listener. It fires after every
// committed change of whichever mechanic is active, and after
// deactivation.
func (h *Host) Subscribe(fn Listener) (unsubscribe func()) {
	return h.notifier.Subscribe(fn)
}

// Settings returns the effective settings for a mechanic: the live
// instance's when it is active, the remembered ones otherwise, falling
// back to the mechanic's defaults.
func (h *Host) Settings(id string) (map[string]interface{}, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !Exists(id) {
		return nil, ErrUnknownMechanic
	}
	if m, act := h.activeInstance(); m != nil && act == id {
		return m.Settings(), nil
	}
	if saved, ok := h.savedSettings(id); ok {
		return saved, nil
	}
	probe, err := Create(id, h.deps)
	if err != nil {
		return nil, err
	}
	return probe.Settings(), nil
}

// ApplySettings validates and stores a settings patch for a mechanic.
// When the mechanic is active the patch is applied to the live instance;
// either way the resulting settings are remembered for the mechanic's
// next activation.
func (h *Host) ApplySettings(id string, patch map[string]interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if m, act := h.activeInstance(); m != nil && act == id {
		if err := m.ApplySettings(patch); err != nil {
			return err
		}
		h.store(id, m.Settings())
		return nil
	}

	probe, err := Create(id, h.deps)
	if err != nil {
		return err
	}
	if saved, ok := h.savedSettings(id); ok {
		if err := probe.ApplySettings(saved); err != nil {
			h.deps.Logger.Warn("remembered settings rejected",
				zap.String("mechanic", id),
				zap.Error(err))
		}
	}
	if err := probe.ApplySettings(patch); err != nil {
		return err
	}
	h.store(id, probe.Settings())
	return nil
}

// Transitions returns a copy of the recent transition log, oldest first.
func (h *Host) Transitions() []Transition {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	out := make([]Transition, len(h.transitions))
	copy(out, h.transitions)
	return out
}

func (h *Host) activeInstance() (Mechanic, string) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.active, h.activeID
}

func (h *Host) savedSettings(id string) (map[string]interface{}, bool) {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	s, ok := h.saved[id]
	if !ok {
		return nil, false
	}
	return CloneSettings(s), true
}

func (h *Host) store(id string, settings map[string]interface{}) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	h.saved[id] = CloneSettings(settings)
}
