package mechanic

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// NullMechanic is a stub mechanic that plays nothing. It satisfies the
// full contract, records the clicks it receives and lets callers drive
// its phase by hand, which makes it a useful stand-in for exercising the
// host without a real game.
type NullMechanic struct {
	manifest Manifest
	deps     Deps

	mu       sync.RWMutex
	phase    string
	complete bool
	failure  string
	clicks   []string
	settings map[string]interface{}

	notifier Notifier
}

// NewNull builds a null mechanic carrying the given manifest.
func NewNull(m Manifest, deps Deps) *NullMechanic {
	return &NullMechanic{
		manifest: m,
		deps:     deps.WithDefaults(),
		settings: map[string]interface{}{},
	}
}

// NullFactory returns a registry factory producing null mechanics with
// the given manifest.
func NullFactory(m Manifest) Factory {
	return func(deps Deps) Mechanic { return NewNull(m, deps) }
}

type nullState struct {
	id       string
	phase    string
	complete bool
	failure  string
}

func (s nullState) MechanicID() string { return s.id }
func (s nullState) Phase() string      { return s.phase }
func (s nullState) Complete() bool     { return s.complete }
func (s nullState) Failure() string    { return s.failure }

func (n *NullMechanic) Manifest() Manifest { return n.manifest }

func (n *NullMechanic) Activate() {
	n.mu.Lock()
	n.phase = "idle"
	n.mu.Unlock()
	n.deps.Logger.Info("null mechanic activated", zap.String("mechanic", n.manifest.ID))
}

func (n *NullMechanic) Deactivate() {
	n.mu.Lock()
	n.phase = ""
	n.complete = false
	n.clicks = nil
	n.mu.Unlock()
	n.notifier.Reset()
}

func (n *NullMechanic) InitGame() {
	n.mu.Lock()
	if n.complete {
		n.mu.Unlock()
		return
	}
	n.phase = "idle"
	n.clicks = nil
	n.mu.Unlock()
	n.notifier.Notify()
}

func (n *NullMechanic) Reset() {
	n.mu.Lock()
	n.complete = false
	n.phase = "idle"
	n.clicks = nil
	n.mu.Unlock()
	n.notifier.Notify()
}

func (n *NullMechanic) State() State {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return nullState{
		id:       n.manifest.ID,
		phase:    n.phase,
		complete: n.complete,
		failure:  n.failure,
	}
}

func (n *NullMechanic) Subscribe(fn Listener) func() {
	return n.notifier.Subscribe(fn)
}

func (n *NullMechanic) CardActions() CardActions {
	return CardActions{
		OnClick: func(cardID string) {
			n.mu.Lock()
			n.clicks = append(n.clicks, cardID)
			n.mu.Unlock()
			n.notifier.Notify()
		},
		CanInteract:   func(string) bool { return true },
		IsHighlighted: func(string) bool { return false },
	}
}

func (n *NullMechanic) Settings() map[string]interface{} {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return CloneSettings(n.settings)
}

// ApplySettings accepts any scalar-valued patch; the null mechanic has
// no schema to enforce.
func (n *NullMechanic) ApplySettings(patch map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for k, v := range patch {
		switch v.(type) {
		case string, bool, int, int64, float64, nil:
			n.settings[k] = v
		default:
			return fmt.Errorf("setting %q: unsupported value", k)
		}
	}
	return nil
}

// Clicks lists the card ids clicked since the last deal.
func (n *NullMechanic) Clicks() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.clicks...)
}

// SetPhase forces the phase; tests drive host behaviour with it.
func (n *NullMechanic) SetPhase(phase string) {
	n.mu.Lock()
	n.phase = phase
	n.mu.Unlock()
	n.notifier.Notify()
}

// SetComplete forces the completion flag.
func (n *NullMechanic) SetComplete(done bool) {
	n.mu.Lock()
	n.complete = done
	n.mu.Unlock()
	n.notifier.Notify()
}

// SetFailure forces a failure state.
func (n *NullMechanic) SetFailure(reason string) {
	n.mu.Lock()
	n.failure = reason
	n.mu.Unlock()
	n.notifier.Notify()
}
