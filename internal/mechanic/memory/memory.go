// Package memory implements the pair-matching mechanic: a shuffled board
// of duplicated cards, a three-phase selection state machine with a
// delayed match check, and time-decayed scoring.
package memory

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic"
)

// ID is the mechanic's registry identifier.
const ID = "memory"

const (
	// flipAnimation and viewWindow pace the Extreme auto-hide: the first
	// selection stays visible for the flip animation plus a short
	// memorisation window, then turns face-down again.
	flipAnimation = 600 * time.Millisecond
	viewWindow    = 800 * time.Millisecond

	baseScore        = 100
	minScore         = 10
	penaltyPerSecond = 2

	defaultPairCount = 6
	minPairCount     = 2
)

var manifest = mechanic.Manifest{
	ID:          ID,
	Name:        "Memory",
	Description: "Flip cards two at a time and find every matching pair.",
	Icon:        "memory",
	MinCards:    minPairCount,
	Version:     "1.2.0",
}

func init() {
	mechanic.Register(manifest, func(deps mechanic.Deps) mechanic.Mechanic {
		return New(deps)
	})
}

type phase int

const (
	phaseIdle phase = iota
	phaseFirstSelected
	phaseLocked
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseFirstSelected:
		return "first_selected"
	case phaseLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// cardInstance is one physical draw of a logical card. Every logical
// card on the board exists as two instances, "<id>-a" and "<id>-b"; two
// instances match iff they share the base and differ by suffix.
type cardInstance struct {
	id   string
	base string
	card cardpool.Card
}

// Engine is the memory mechanic. All exported methods are safe for
// concurrent use; committed changes are announced through the notifier
// after the state lock is released.
type Engine struct {
	deps mechanic.Deps

	mu         sync.RWMutex
	difficulty Difficulty
	pairCount  int

	phase        phase
	complete     bool
	failure      string
	cards        []cardInstance
	byID         map[string]*cardInstance
	first        string
	second       string
	visible      map[string]bool
	matched      map[string]bool
	matchedPairs [][2]string
	attempts     int
	score        int
	startTime    time.Time
	endTime      time.Time

	// gameSeq increments on every deal and teardown; scheduled callbacks
	// carry the value they were armed under and stand down on mismatch.
	gameSeq     int
	checkCancel func()
	hideCancel  func()

	notifier mechanic.Notifier
}

var (
	_ mechanic.Mechanic      = (*Engine)(nil)
	_ mechanic.BoardProvider = (*Engine)(nil)
)

// New builds an inactive engine with default settings.
func New(deps mechanic.Deps) *Engine {
	return &Engine{
		deps:       deps.WithDefaults(),
		difficulty: DifficultyMedium,
		pairCount:  defaultPairCount,
		visible:    make(map[string]bool),
		matched:    make(map[string]bool),
		byID:       make(map[string]*cardInstance),
	}
}

// Manifest returns the mechanic's static description.
func (e *Engine) Manifest() mechanic.Manifest { return manifest }

// Activate readies the engine. The board is dealt by InitGame.
func (e *Engine) Activate() {
	e.deps.Logger.Info("memory mechanic activated",
		zap.String("difficulty", string(e.currentDifficulty())),
		zap.Int("pool_size", len(e.deps.Pool.Cards())))
}

// Deactivate cancels pending callbacks, discards game state and drops
// all listeners.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	e.cancelTimersLocked()
	e.gameSeq++
	e.phase = phaseIdle
	e.complete = false
	e.failure = ""
	e.cards = nil
	e.byID = make(map[string]*cardInstance)
	e.first, e.second = "", ""
	e.visible = make(map[string]bool)
	e.matched = make(map[string]bool)
	e.matchedPairs = nil
	e.attempts = 0
	e.score = 0
	e.startTime = time.Time{}
	e.endTime = time.Time{}
	e.mu.Unlock()
	e.notifier.Reset()
}

// InitGame deals a fresh board with the current settings. While a
// finished board is on the table InitGame is a no-op, so a completed
// game is never replaced silently; Reset starts over.
func (e *Engine) InitGame() {
	e.mu.Lock()
	if e.complete {
		e.mu.Unlock()
		return
	}
	e.dealLocked()
	e.mu.Unlock()
	e.notifier.Notify()
}

// Reset discards any finished or in-progress game and deals again.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.complete = false
	e.dealLocked()
	e.mu.Unlock()
	e.notifier.Notify()
}

func (e *Engine) dealLocked() {
	e.cancelTimersLocked()
	e.gameSeq++
	e.phase = phaseIdle
	e.first, e.second = "", ""
	e.visible = make(map[string]bool)
	e.matched = make(map[string]bool)
	e.matchedPairs = nil
	e.attempts = 0
	e.score = 0
	e.endTime = time.Time{}
	e.cards = nil
	e.byID = make(map[string]*cardInstance)

	pool := e.deps.Pool.Cards()
	if len(pool) < minPairCount {
		e.failure = fmt.Sprintf("memory needs at least %d cards, the collection has %d", minPairCount, len(pool))
		e.startTime = time.Time{}
		e.deps.Logger.Warn("memory cannot start", zap.String("reason", e.failure))
		return
	}
	e.failure = ""

	pairs := e.pairCount
	if pairs > len(pool) {
		pairs = len(pool)
	}

	e.deps.Rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	for _, c := range pool[:pairs] {
		for _, suffix := range []string{"-a", "-b"} {
			inst := cardInstance{id: c.ID + suffix, base: c.ID, card: c}
			e.cards = append(e.cards, inst)
		}
	}
	e.deps.Rand.Shuffle(len(e.cards), func(i, j int) { e.cards[i], e.cards[j] = e.cards[j], e.cards[i] })
	for i := range e.cards {
		e.byID[e.cards[i].id] = &e.cards[i]
	}

	e.startTime = e.deps.Now()
	e.deps.Logger.Info("memory board dealt",
		zap.Int("pairs", pairs),
		zap.String("difficulty", string(e.difficulty)))
}

func (e *Engine) cancelTimersLocked() {
	if e.checkCancel != nil {
		e.checkCancel()
		e.checkCancel = nil
	}
	if e.hideCancel != nil {
		e.hideCancel()
		e.hideCancel = nil
	}
}

// SelectCard is the click entry point. Clicks on matched cards, cards
// already occupying a selection slot, unknown ids, a finished board or
// a failed engine are ignored.
func (e *Engine) SelectCard(instanceID string) {
	e.mu.Lock()
	if e.complete || e.failure != "" {
		e.mu.Unlock()
		return
	}
	if _, ok := e.byID[instanceID]; !ok || e.matched[instanceID] {
		e.mu.Unlock()
		return
	}

	changed := false
	switch e.phase {
	case phaseIdle:
		e.beginSelectionLocked(instanceID)
		changed = true
	case phaseFirstSelected:
		if instanceID != e.first {
			e.completeSelectionLocked(instanceID)
			changed = true
		}
	case phaseLocked:
		// A third, distinct card arrived before the delayed check: the
		// pending pair resolves now, exactly once, and the new card
		// becomes a fresh first selection.
		if instanceID != e.first && instanceID != e.second {
			e.resolvePairLocked()
			if !e.complete {
				e.beginSelectionLocked(instanceID)
			}
			changed = true
		}
	}
	e.mu.Unlock()
	if changed {
		e.notifier.Notify()
	}
}

func (e *Engine) beginSelectionLocked(id string) {
	e.first = id
	e.second = ""
	e.visible[id] = true
	e.phase = phaseFirstSelected
	if e.difficulty.autoHide() {
		e.scheduleHideLocked(id)
	}
}

func (e *Engine) completeSelectionLocked(id string) {
	if e.hideCancel != nil {
		e.hideCancel()
		e.hideCancel = nil
	}
	e.second = id
	e.visible[id] = true
	e.visible[e.first] = true
	e.attempts++
	e.phase = phaseLocked
	e.scheduleCheckLocked()
}

func (e *Engine) scheduleCheckLocked() {
	if e.checkCancel != nil {
		e.checkCancel()
	}
	seq := e.gameSeq
	first, second := e.first, e.second
	e.checkCancel = e.deps.Scheduler.Schedule(e.difficulty.flipDelay(), func() {
		e.mu.Lock()
		stale := seq != e.gameSeq || e.phase != phaseLocked || e.first != first || e.second != second
		if !stale {
			e.resolvePairLocked()
		}
		e.mu.Unlock()
		if !stale {
			e.notifier.Notify()
		}
	})
}

func (e *Engine) scheduleHideLocked(id string) {
	if e.hideCancel != nil {
		e.hideCancel()
	}
	seq := e.gameSeq
	e.hideCancel = e.deps.Scheduler.Schedule(flipAnimation+viewWindow, func() {
		e.mu.Lock()
		stale := seq != e.gameSeq || e.phase != phaseFirstSelected || e.first != id
		if !stale {
			delete(e.visible, id)
		}
		e.mu.Unlock()
		if !stale {
			e.notifier.Notify()
		}
	})
}

// resolvePairLocked applies match or no-match for the two filled slots,
// cancels the pending check and returns to idle, or completes the game
// when the final pair lands. Callers hold e.mu with both slots filled.
func (e *Engine) resolvePairLocked() {
	if e.checkCancel != nil {
		e.checkCancel()
		e.checkCancel = nil
	}
	first, second := e.first, e.second
	e.first, e.second = "", ""
	e.phase = phaseIdle
	delete(e.visible, first)
	delete(e.visible, second)

	a, b := e.byID[first], e.byID[second]
	if a == nil || b == nil || a.base != b.base || first == second {
		return
	}

	e.matched[first] = true
	e.matched[second] = true
	e.matchedPairs = append(e.matchedPairs, [2]string{first, second})

	elapsed := int(e.deps.Now().Sub(e.startTime).Seconds())
	gained := baseScore - elapsed*penaltyPerSecond
	if gained < minScore {
		gained = minScore
	}
	e.score += gained

	if len(e.matchedPairs)*2 == len(e.cards) {
		e.score *= len(e.matchedPairs)
		e.complete = true
		e.endTime = e.deps.Now()
		e.deps.Logger.Info("memory game complete",
			zap.Int("score", e.score),
			zap.Int("attempts", e.attempts),
			zap.Int("pairs", len(e.matchedPairs)))
	}
}

// Snapshot is the immutable view of a memory game.
type Snapshot struct {
	Mechanic     string      `json:"mechanic"`
	PhaseName    string      `json:"phase"`
	IsComplete   bool        `json:"complete"`
	FailureText  string      `json:"failure,omitempty"`
	Difficulty   Difficulty  `json:"difficulty"`
	PairCount    int         `json:"pairCount"`
	FirstCard    string      `json:"firstCard,omitempty"`
	SecondCard   string      `json:"secondCard,omitempty"`
	VisibleCards []string    `json:"visibleCards"`
	MatchedPairs [][2]string `json:"matchedPairs"`
	Attempts     int         `json:"attempts"`
	Score        int         `json:"score"`
	StartTime    time.Time   `json:"startTime"`
	EndTime      *time.Time  `json:"endTime,omitempty"`
	CardIDs      []string    `json:"cardIds"`
}

func (s Snapshot) MechanicID() string { return s.Mechanic }
func (s Snapshot) Phase() string      { return s.PhaseName }
func (s Snapshot) Complete() bool     { return s.IsComplete }
func (s Snapshot) Failure() string    { return s.FailureText }

// State returns the current snapshot.
func (e *Engine) State() mechanic.State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	visible := make([]string, 0, len(e.visible))
	for id := range e.visible {
		visible = append(visible, id)
	}
	sort.Strings(visible)

	pairs := make([][2]string, len(e.matchedPairs))
	copy(pairs, e.matchedPairs)

	ids := make([]string, 0, len(e.cards))
	for _, inst := range e.cards {
		ids = append(ids, inst.id)
	}

	s := Snapshot{
		Mechanic:     ID,
		PhaseName:    e.phase.String(),
		IsComplete:   e.complete,
		FailureText:  e.failure,
		Difficulty:   e.difficulty,
		PairCount:    len(e.cards) / 2,
		FirstCard:    e.first,
		SecondCard:   e.second,
		VisibleCards: visible,
		MatchedPairs: pairs,
		Attempts:     e.attempts,
		Score:        e.score,
		StartTime:    e.startTime,
		CardIDs:      ids,
	}
	if !e.endTime.IsZero() {
		t := e.endTime
		s.EndTime = &t
	}
	return s
}

// Subscribe registers a state-change listener.
func (e *Engine) Subscribe(fn mechanic.Listener) func() {
	return e.notifier.Subscribe(fn)
}

// CardActions exposes the click surface. Everything degrades to no-ops
// while the engine is failed or the board finished.
func (e *Engine) CardActions() mechanic.CardActions {
	return mechanic.CardActions{
		OnClick:       e.SelectCard,
		CanInteract:   e.CanInteract,
		IsHighlighted: e.IsHighlighted,
	}
}

// CanInteract reports whether a click on the instance would do anything.
func (e *Engine) CanInteract(instanceID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.canInteractLocked(instanceID)
}

func (e *Engine) canInteractLocked(instanceID string) bool {
	if e.complete || e.failure != "" {
		return false
	}
	if _, ok := e.byID[instanceID]; !ok {
		return false
	}
	if e.matched[instanceID] {
		return false
	}
	return instanceID != e.first && instanceID != e.second
}

// IsHighlighted reports whether the instance renders face-up.
func (e *Engine) IsHighlighted(instanceID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.visible[instanceID] || e.matched[instanceID]
}

// Board lays the dealt instances out in table order.
func (e *Engine) Board() []mechanic.BoardCard {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]mechanic.BoardCard, 0, len(e.cards))
	for _, inst := range e.cards {
		faceUp := e.visible[inst.id] || e.matched[inst.id]
		out = append(out, mechanic.BoardCard{
			ID:          inst.id,
			CardID:      inst.card.ID,
			Title:       inst.card.Title,
			Fields:      inst.card.Fields,
			Zone:        "grid",
			FaceUp:      faceUp,
			Matched:     e.matched[inst.id],
			Interactive: e.canInteractLocked(inst.id),
			Highlighted: faceUp,
		})
	}
	return out
}

// Settings returns the raw configured values, before any per-deal
// clamping against the pool size.
func (e *Engine) Settings() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"difficulty": string(e.difficulty),
		"pairCount":  e.pairCount,
	}
}

// ApplySettings validates and merges a patch. The whole patch applies or
// none of it does; new values take effect at the next deal.
func (e *Engine) ApplySettings(patch map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	difficulty := e.difficulty
	pairCount := e.pairCount
	for k, v := range patch {
		switch k {
		case "difficulty":
			s, ok := mechanic.SettingString(v)
			if !ok {
				return fmt.Errorf("memory: difficulty must be a string")
			}
			d, ok := ParseDifficulty(s)
			if !ok {
				return fmt.Errorf("memory: unknown difficulty %q", s)
			}
			difficulty = d
		case "pairCount":
			n, ok := mechanic.SettingInt(v)
			if !ok {
				return fmt.Errorf("memory: pairCount must be an integer")
			}
			if n < minPairCount {
				n = minPairCount
			}
			pairCount = n
		default:
			return fmt.Errorf("memory: unknown setting %q", k)
		}
	}
	e.difficulty = difficulty
	e.pairCount = pairCount
	return nil
}

func (e *Engine) currentDifficulty() Difficulty {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.difficulty
}
