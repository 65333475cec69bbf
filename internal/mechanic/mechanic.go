// Package mechanic defines the contract between the ItemDeck host and its
// pluggable game mechanics, together with the infrastructure the mechanics
// share: the registry, the host, delayed-callback scheduling and
// state-change notification.
package mechanic

// Manifest describes a mechanic to the host and to API clients.
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	MinCards    int    `json:"minCards"`
	Version     string `json:"version"`
}

// Listener is invoked synchronously after a mechanic commits a state
// change. Listeners read the new state through the mechanic's accessors;
// no payload is delivered.
type Listener func()

// State is an immutable snapshot of a mechanic's observable state.
// Concrete snapshot types carry the mechanic-specific view and marshal
// to JSON for the API; the interface exposes the parts the host and the
// server need without knowing the mechanic.
type State interface {
	// MechanicID names the mechanic that produced the snapshot.
	MechanicID() string
	// Phase is the mechanic's current phase name.
	Phase() string
	// Complete reports whether the game has finished.
	Complete() bool
	// Failure is a human-readable reason the mechanic cannot run
	// (for example a card pool that is too small), or "" when healthy.
	// A failed mechanic stays activated and reports its failure through
	// state rather than through errors.
	Failure() string
}

// CardActions bundles the per-card capabilities a mechanic grants the
// renderer. Any of the funcs may be nil when the mechanic does not
// support the capability; use the wrapper methods, which are nil-safe.
type CardActions struct {
	OnClick       func(cardID string)
	CanInteract   func(cardID string) bool
	IsHighlighted func(cardID string) bool
}

// Click forwards a click to the mechanic. Clicks on cards the mechanic
// is not interested in are ignored, never errors.
func (a CardActions) Click(cardID string) {
	if a.OnClick != nil {
		a.OnClick(cardID)
	}
}

// Interactive reports whether the card accepts clicks right now.
func (a CardActions) Interactive(cardID string) bool {
	return a.CanInteract != nil && a.CanInteract(cardID)
}

// Highlighted reports whether the card should be visually emphasised.
func (a CardActions) Highlighted(cardID string) bool {
	return a.IsHighlighted != nil && a.IsHighlighted(cardID)
}

// NoCardActions is the empty capability bundle. Mechanics return it while
// failed or torn down.
func NoCardActions() CardActions { return CardActions{} }

// Mechanic is the contract every game mechanic implements. Instances are
// single-use in spirit: the host creates a fresh one per activation and
// discards it on deactivation. All methods are safe for concurrent use.
type Mechanic interface {
	// Manifest returns the static description of the mechanic.
	Manifest() Manifest

	// Activate prepares the mechanic for play. Problems such as an
	// undersized card pool are reported through State().Failure, not
	// through errors.
	Activate()

	// Deactivate tears the mechanic down: pending callbacks are
	// cancelled, game state is discarded and listeners are dropped.
	Deactivate()

	// InitGame deals a fresh game. Mechanics with sticky completion
	// ignore InitGame while State().Complete is true; Reset always
	// starts over.
	InitGame()

	// Reset clears any completed or in-progress game and deals again.
	Reset()

	// State returns a snapshot of the current observable state.
	State() State

	// Subscribe registers a listener for committed state changes and
	// returns its unsubscribe func. Delivery is synchronous and in
	// subscription order; changes a listener itself triggers are
	// coalesced into one trailing round instead of re-entering it.
	Subscribe(fn Listener) (unsubscribe func())

	// CardActions returns the current per-card capability bundle.
	CardActions() CardActions

	// Settings returns the mechanic's full settings map. The map is a
	// copy; mutating it does not affect the mechanic.
	Settings() map[string]interface{}

	// ApplySettings merges a partial settings patch. Unknown keys are
	// rejected; values are validated and clamped per mechanic. Patches
	// take effect no later than the next InitGame.
	ApplySettings(patch map[string]interface{}) error
}

// StatSelector is implemented by mechanics whose rounds are driven by
// choosing a comparison stat, such as the competing mechanic.
type StatSelector interface {
	// SelectStat chooses the stat for the current round on the
	// player's behalf.
	SelectStat(key string) error
	// ConfirmSelection acknowledges a selection the mechanic itself
	// made, typically the CPU's, and lets the round proceed.
	ConfirmSelection() error
}

// Advancer is implemented by mechanics with timed interstitial phases
// that the player may skip instead of waiting out.
type Advancer interface {
	// Advance fast-forwards the current delayed transition, if any.
	// Calling it in a phase with nothing pending is a no-op.
	Advance()
}

// BoardCard describes one laid-out card as the renderer should draw it.
type BoardCard struct {
	// ID is the mechanic-assigned instance id, distinct from the pool
	// card id when the mechanic duplicates cards.
	ID          string            `json:"id"`
	CardID      string            `json:"cardId"`
	Title       string            `json:"title"`
	Fields      map[string]string `json:"fields,omitempty"`
	Zone        string            `json:"zone"`
	FaceUp      bool              `json:"faceUp"`
	Matched     bool              `json:"matched,omitempty"`
	Interactive bool              `json:"interactive"`
	Highlighted bool              `json:"highlighted"`
}

// BoardProvider is implemented by mechanics that lay cards out for
// rendering.
type BoardProvider interface {
	Board() []BoardCard
}
