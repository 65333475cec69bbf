// Package competing implements the stat-battle mechanic: the pool is
// split into two decks, each round one side picks a comparison stat and
// the better value captures both in-play cards plus any standing tie
// pile. The CPU side plays one of three difficulty strategies.
package competing

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic"
)

// ID is the mechanic's registry identifier.
const ID = "competing"

const (
	// Pacing for the timed transitions. Every one of these is
	// cancellable and can be skipped with Advance.
	revealDelay   = 900 * time.Millisecond
	collectDelay  = 600 * time.Millisecond
	roundEndDelay = 2 * time.Second
	cpuThinkDelay = 1200 * time.Millisecond

	defaultRoundLimit = 10
	minCardsToPlay    = 4
)

const (
	resultPlayer = "player"
	resultCPU    = "cpu"
	resultTie    = "tie"
	resultDraw   = "draw"
)

var manifest = mechanic.Manifest{
	ID:          ID,
	Name:        "Competing",
	Description: "Pick the stat where your card beats the computer's and capture its cards.",
	Icon:        "competing",
	MinCards:    minCardsToPlay,
	Version:     "1.3.0",
}

func init() {
	mechanic.Register(manifest, func(deps mechanic.Deps) mechanic.Mechanic {
		return New(deps)
	})
}

type phase int

const (
	phaseSetup phase = iota
	phasePlayerSelect
	phaseCPUSelect
	phaseCPUReveal
	phaseReveal
	phaseCollecting
	phaseRoundEnd
	phaseGameOver
)

func (p phase) String() string {
	switch p {
	case phaseSetup:
		return "setup"
	case phasePlayerSelect:
		return "player_select"
	case phaseCPUSelect:
		return "cpu_select"
	case phaseCPUReveal:
		return "cpu_reveal"
	case phaseReveal:
		return "reveal"
	case phaseCollecting:
		return "collecting"
	case phaseRoundEnd:
		return "round_end"
	case phaseGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

type turn int

const (
	turnPlayer turn = iota
	turnCPU
)

func (t turn) String() string {
	if t == turnCPU {
		return "cpu"
	}
	return "player"
}

// RoundResult captures one resolved comparison.
type RoundResult struct {
	Stat        string  `json:"stat"`
	PlayerValue float64 `json:"playerValue"`
	CPUValue    float64 `json:"cpuValue"`
	Winner      string  `json:"winner"`
}

// Tally is a per-side running count.
type Tally struct {
	Player int `json:"player"`
	CPU    int `json:"cpu"`
}

// Engine is the competing mechanic. The card containers obey one
// invariant at every committed state: each dealt card id sits in exactly
// one of playerDeck, cpuDeck, tiePile, playerCard, cpuCard.
type Engine struct {
	deps mechanic.Deps

	mu          sync.RWMutex
	difficulty  Difficulty
	roundLimit  int
	thinkPause  bool
	autoAdvance bool

	phase   phase
	failure string

	cards  map[string]cardpool.Card
	fields []cardpool.NumericField

	playerDeck []string
	cpuDeck    []string
	tiePile    []string
	playerCard string
	cpuCard    string

	selectedStat string
	currentTurn  turn
	currentRound int
	roundsWon    Tally
	cardsWon     Tally
	roundResult  *RoundResult
	winner       string

	history  []string
	strategy Strategy

	// gameSeq increments on every deal and teardown; scheduled
	// callbacks stand down when it, the phase or the round has moved on.
	gameSeq       int
	pendingCancel func()

	notifier mechanic.Notifier
}

var (
	_ mechanic.Mechanic      = (*Engine)(nil)
	_ mechanic.StatSelector  = (*Engine)(nil)
	_ mechanic.Advancer      = (*Engine)(nil)
	_ mechanic.BoardProvider = (*Engine)(nil)
)

// New builds an inactive engine with default settings.
func New(deps mechanic.Deps) *Engine {
	return &Engine{
		deps:        deps.WithDefaults(),
		difficulty:  DifficultyMedium,
		roundLimit:  defaultRoundLimit,
		thinkPause:  true,
		autoAdvance: true,
		cards:       make(map[string]cardpool.Card),
	}
}

// Manifest returns the mechanic's static description.
func (e *Engine) Manifest() mechanic.Manifest { return manifest }

// Activate readies the engine. The decks are dealt by InitGame.
func (e *Engine) Activate() {
	e.deps.Logger.Info("competing mechanic activated",
		zap.String("difficulty", string(e.settingsDifficulty())),
		zap.Int("pool_size", len(e.deps.Pool.Cards())))
}

// Deactivate cancels the pending transition, discards game state and
// drops all listeners.
func (e *Engine) Deactivate() {
	e.mu.Lock()
	e.cancelPendingLocked()
	e.gameSeq++
	e.clearGameLocked()
	e.mu.Unlock()
	e.notifier.Reset()
}

// InitGame splits the pool into two decks and opens round one.
func (e *Engine) InitGame() {
	e.mu.Lock()
	e.dealLocked()
	e.mu.Unlock()
	e.notifier.Notify()
}

// Reset is InitGame under another name; competing games carry no sticky
// completion, a finished battle simply redeals.
func (e *Engine) Reset() {
	e.InitGame()
}

func (e *Engine) clearGameLocked() {
	e.phase = phaseSetup
	e.failure = ""
	e.cards = make(map[string]cardpool.Card)
	e.fields = nil
	e.playerDeck, e.cpuDeck, e.tiePile = nil, nil, nil
	e.playerCard, e.cpuCard = "", ""
	e.selectedStat = ""
	e.currentTurn = turnPlayer
	e.currentRound = 0
	e.roundsWon = Tally{}
	e.cardsWon = Tally{}
	e.roundResult = nil
	e.winner = ""
	e.history = nil
	e.strategy = nil
}

func (e *Engine) dealLocked() {
	e.cancelPendingLocked()
	e.gameSeq++
	e.clearGameLocked()

	pool := e.deps.Pool.Cards()
	fields := e.deps.Pool.NumericFields()
	switch {
	case len(pool) < minCardsToPlay:
		e.failure = fmt.Sprintf("competing needs at least %d cards, the collection has %d", minCardsToPlay, len(pool))
	case len(fields) == 0:
		e.failure = "competing needs at least one numeric field shared by every card"
	}
	if e.failure != "" {
		e.deps.Logger.Warn("competing cannot start", zap.String("reason", e.failure))
		return
	}

	e.fields = fields
	e.strategy = strategyFor(e.difficulty, e.deps.Rand)

	e.deps.Rand.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	for i, c := range pool {
		e.cards[c.ID] = c
		if i%2 == 0 {
			e.playerDeck = append(e.playerDeck, c.ID)
		} else {
			e.cpuDeck = append(e.cpuDeck, c.ID)
		}
	}

	e.currentRound = 1
	e.currentTurn = turnPlayer
	e.drawLocked()
	e.phase = phasePlayerSelect

	e.deps.Logger.Info("competing decks dealt",
		zap.Int("player_deck", len(e.playerDeck)),
		zap.Int("cpu_deck", len(e.cpuDeck)),
		zap.Int("fields", len(e.fields)),
		zap.String("difficulty", string(e.difficulty)),
		zap.Int("round_limit", e.roundLimit))
}

func (e *Engine) drawLocked() {
	e.playerCard, e.playerDeck = e.playerDeck[0], e.playerDeck[1:]
	e.cpuCard, e.cpuDeck = e.cpuDeck[0], e.cpuDeck[1:]
}

func (e *Engine) cancelPendingLocked() {
	if e.pendingCancel != nil {
		e.pendingCancel()
		e.pendingCancel = nil
	}
}

// scheduleLocked arms the single pending transition. The callback stands
// down unless the game, phase and round it was armed under are all still
// current.
func (e *Engine) scheduleLocked(d time.Duration, expect phase, fn func()) {
	e.cancelPendingLocked()
	seq, round := e.gameSeq, e.currentRound
	e.pendingCancel = e.deps.Scheduler.Schedule(d, func() {
		e.mu.Lock()
		if seq != e.gameSeq || e.phase != expect || round != e.currentRound {
			e.mu.Unlock()
			return
		}
		fn()
		e.mu.Unlock()
		e.notifier.Notify()
	})
}

// SelectStat plays the given field for the current round. Only valid on
// the player's turn.
func (e *Engine) SelectStat(key string) error {
	e.mu.Lock()
	if e.failure != "" {
		e.mu.Unlock()
		return fmt.Errorf("competing: not playable: %s", e.failure)
	}
	if e.phase != phasePlayerSelect {
		e.mu.Unlock()
		return fmt.Errorf("competing: stat selection is not open in phase %s", e.phase)
	}
	if _, ok := e.fieldByKey(key); !ok {
		e.mu.Unlock()
		return fmt.Errorf("competing: unknown stat %q", key)
	}

	e.history = append(e.history, key)
	e.strategy.ObservePlayer(key)
	e.selectedStat = key
	e.resolveLocked()
	e.mu.Unlock()
	e.notifier.Notify()
	return nil
}

// ConfirmSelection acknowledges the CPU's pick and reveals both values.
// Only valid while a CPU selection is waiting.
func (e *Engine) ConfirmSelection() error {
	e.mu.Lock()
	if e.phase != phaseCPUReveal {
		e.mu.Unlock()
		return fmt.Errorf("competing: no cpu selection awaiting confirmation in phase %s", e.phase)
	}
	e.resolveLocked()
	e.mu.Unlock()
	e.notifier.Notify()
	return nil
}

// Advance fast-forwards whichever timed transition is pending: the CPU
// think pause, the reveal and collecting pauses, and the round-end
// banner. In any other phase it is a no-op.
func (e *Engine) Advance() {
	e.mu.Lock()
	changed := true
	switch e.phase {
	case phaseCPUSelect:
		e.cancelPendingLocked()
		e.cpuChooseLocked()
	case phaseReveal:
		e.cancelPendingLocked()
		e.collectLocked()
	case phaseCollecting:
		e.cancelPendingLocked()
		e.endRoundLocked()
	case phaseRoundEnd:
		e.cancelPendingLocked()
		e.nextRoundLocked()
	default:
		changed = false
	}
	e.mu.Unlock()
	if changed {
		e.notifier.Notify()
	}
}

// resolveLocked compares the selected stat on both in-play cards and
// enters the reveal phase.
func (e *Engine) resolveLocked() {
	f, _ := e.fieldByKey(e.selectedStat)
	pv, _ := f.Value(e.cards[e.playerCard])
	cv, _ := f.Value(e.cards[e.cpuCard])

	var winner string
	switch {
	case pv == cv:
		winner = resultTie
	case f.HigherIsBetter:
		winner = resultCPU
		if pv > cv {
			winner = resultPlayer
		}
	default:
		winner = resultCPU
		if pv < cv {
			winner = resultPlayer
		}
	}

	e.roundResult = &RoundResult{
		Stat:        e.selectedStat,
		PlayerValue: pv,
		CPUValue:    cv,
		Winner:      winner,
	}
	e.phase = phaseReveal
	e.scheduleLocked(revealDelay, phaseReveal, e.collectLocked)

	e.deps.Logger.Debug("competing round resolved",
		zap.Int("round", e.currentRound),
		zap.String("stat", e.selectedStat),
		zap.Float64("player", pv),
		zap.Float64("cpu", cv),
		zap.String("winner", winner))
}

// collectLocked moves the in-play cards where the result says they go:
// a decisive winner captures both plus the whole tie pile, a tie parks
// both on the pile for a later decisive round.
func (e *Engine) collectLocked() {
	switch e.roundResult.Winner {
	case resultPlayer:
		e.captureLocked(&e.playerDeck, &e.cardsWon.Player)
		e.roundsWon.Player++
	case resultCPU:
		e.captureLocked(&e.cpuDeck, &e.cardsWon.CPU)
		e.roundsWon.CPU++
	default:
		e.tiePile = append(e.tiePile, e.playerCard, e.cpuCard)
		e.playerCard, e.cpuCard = "", ""
	}
	e.phase = phaseCollecting
	e.scheduleLocked(collectDelay, phaseCollecting, e.endRoundLocked)
}

func (e *Engine) captureLocked(deck *[]string, tally *int) {
	won := make([]string, 0, 2+len(e.tiePile))
	won = append(won, e.playerCard, e.cpuCard)
	won = append(won, e.tiePile...)
	*deck = append(*deck, won...)
	*tally += len(won)
	e.tiePile = nil
	e.playerCard, e.cpuCard = "", ""
}

// endRoundLocked settles the round: either the game is over, or the
// round-end banner goes up and, with auto-advance on, dismisses itself.
func (e *Engine) endRoundLocked() {
	if winner, over := e.finishedLocked(); over {
		e.phase = phaseGameOver
		e.winner = winner
		e.deps.Logger.Info("competing game over",
			zap.String("winner", winner),
			zap.Int("rounds", e.currentRound),
			zap.Int("player_cards", e.cardsWon.Player),
			zap.Int("cpu_cards", e.cardsWon.CPU))
		return
	}
	e.phase = phaseRoundEnd
	if e.autoAdvance {
		e.scheduleLocked(roundEndDelay, phaseRoundEnd, e.nextRoundLocked)
	}
}

func (e *Engine) finishedLocked() (string, bool) {
	playerOut := e.playerCard == "" && len(e.playerDeck) == 0
	cpuOut := e.cpuCard == "" && len(e.cpuDeck) == 0
	switch {
	case playerOut && cpuOut:
		return e.tallyWinnerLocked(), true
	case playerOut:
		return resultCPU, true
	case cpuOut:
		return resultPlayer, true
	}
	if e.roundLimit > 0 && e.currentRound >= e.roundLimit {
		return e.tallyWinnerLocked(), true
	}
	return "", false
}

// tallyWinnerLocked decides a game that ran out of rounds or cards: the
// side that captured more cards overall wins, equal tallies draw.
func (e *Engine) tallyWinnerLocked() string {
	switch {
	case e.cardsWon.Player > e.cardsWon.CPU:
		return resultPlayer
	case e.cardsWon.CPU > e.cardsWon.Player:
		return resultCPU
	default:
		return resultDraw
	}
}

// nextRoundLocked opens the next round. The loser of the previous round
// selects; a tie keeps the selector.
func (e *Engine) nextRoundLocked() {
	if e.roundResult != nil {
		switch e.roundResult.Winner {
		case resultPlayer:
			e.currentTurn = turnCPU
		case resultCPU:
			e.currentTurn = turnPlayer
		}
	}
	e.currentRound++
	e.selectedStat = ""
	e.roundResult = nil
	e.drawLocked()

	if e.currentTurn == turnCPU {
		e.phase = phaseCPUSelect
		if e.thinkPause {
			e.scheduleLocked(cpuThinkDelay, phaseCPUSelect, e.cpuChooseLocked)
		} else {
			e.cpuChooseLocked()
		}
		return
	}
	e.phase = phasePlayerSelect
}

// cpuChooseLocked lets the strategy pick and parks the choice until the
// player confirms it.
func (e *Engine) cpuChooseLocked() {
	e.selectedStat = e.strategy.ChooseStat(e.cards[e.cpuCard], e.fields)
	e.phase = phaseCPUReveal
	e.deps.Logger.Debug("cpu selected stat",
		zap.Int("round", e.currentRound),
		zap.String("stat", e.selectedStat))
}

func (e *Engine) fieldByKey(key string) (cardpool.NumericField, bool) {
	for _, f := range e.fields {
		if f.Key == key {
			return f, true
		}
	}
	return cardpool.NumericField{}, false
}

// Snapshot is the immutable view of a competing game. Deck contents stay
// private; sizes are enough for the renderer.
type Snapshot struct {
	Mechanic       string                  `json:"mechanic"`
	PhaseName      string                  `json:"phase"`
	FailureText    string                  `json:"failure,omitempty"`
	Difficulty     Difficulty              `json:"difficulty"`
	RoundLimit     int                     `json:"roundLimit"`
	Round          int                     `json:"round"`
	Turn           string                  `json:"turn"`
	SelectedStat   string                  `json:"selectedStat,omitempty"`
	PlayerDeckSize int                     `json:"playerDeckSize"`
	CPUDeckSize    int                     `json:"cpuDeckSize"`
	TiePileSize    int                     `json:"tiePileSize"`
	PlayerCard     string                  `json:"playerCard,omitempty"`
	CPUCard        string                  `json:"cpuCard,omitempty"`
	Fields         []cardpool.NumericField `json:"fields"`
	RoundResult    *RoundResult            `json:"roundResult,omitempty"`
	RoundsWon      Tally                   `json:"roundsWon"`
	CardsWon       Tally                   `json:"cardsWon"`
	Winner         string                  `json:"winner,omitempty"`
	History        []string                `json:"playerSelectionHistory"`
}

func (s Snapshot) MechanicID() string { return s.Mechanic }
func (s Snapshot) Phase() string      { return s.PhaseName }
func (s Snapshot) Complete() bool     { return s.PhaseName == phaseGameOver.String() }
func (s Snapshot) Failure() string    { return s.FailureText }

// State returns the current snapshot.
func (e *Engine) State() mechanic.State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	fields := make([]cardpool.NumericField, len(e.fields))
	copy(fields, e.fields)
	history := make([]string, len(e.history))
	copy(history, e.history)

	s := Snapshot{
		Mechanic:       ID,
		PhaseName:      e.phase.String(),
		FailureText:    e.failure,
		Difficulty:     e.difficulty,
		RoundLimit:     e.roundLimit,
		Round:          e.currentRound,
		Turn:           e.currentTurn.String(),
		SelectedStat:   e.selectedStat,
		PlayerDeckSize: len(e.playerDeck),
		CPUDeckSize:    len(e.cpuDeck),
		TiePileSize:    len(e.tiePile),
		PlayerCard:     e.playerCard,
		CPUCard:        e.cpuCard,
		Fields:         fields,
		RoundsWon:      e.roundsWon,
		CardsWon:       e.cardsWon,
		Winner:         e.winner,
		History:        history,
	}
	if e.roundResult != nil {
		r := *e.roundResult
		s.RoundResult = &r
	}
	return s
}

// Subscribe registers a state-change listener.
func (e *Engine) Subscribe(fn mechanic.Listener) func() {
	return e.notifier.Subscribe(fn)
}

// CardActions exposes the tap surface: tapping the player's own card
// confirms a waiting CPU pick or skips a timed pause.
func (e *Engine) CardActions() mechanic.CardActions {
	return mechanic.CardActions{
		OnClick:       e.tapCard,
		CanInteract:   e.CanInteract,
		IsHighlighted: e.IsHighlighted,
	}
}

func (e *Engine) tapCard(cardID string) {
	e.mu.RLock()
	ph, own := e.phase, e.playerCard
	e.mu.RUnlock()

	switch ph {
	case phaseCPUReveal:
		if cardID == own {
			_ = e.ConfirmSelection()
		}
	case phaseReveal, phaseCollecting, phaseRoundEnd:
		if cardID == own || own == "" {
			e.Advance()
		}
	}
}

// CanInteract reports whether tapping the card does anything right now.
func (e *Engine) CanInteract(cardID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.canInteractLocked(cardID)
}

// IsHighlighted marks the in-play cards.
func (e *Engine) IsHighlighted(cardID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if cardID == "" {
		return false
	}
	return cardID == e.playerCard || cardID == e.cpuCard
}

// Board lays out the in-play cards and the tie pile. The CPU card stays
// face-down until the round's values are revealed.
func (e *Engine) Board() []mechanic.BoardCard {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cpuFaceUp := false
	switch e.phase {
	case phaseReveal, phaseCollecting, phaseRoundEnd, phaseGameOver:
		cpuFaceUp = true
	}

	out := make([]mechanic.BoardCard, 0, 2+len(e.tiePile))
	if e.playerCard != "" {
		c := e.cards[e.playerCard]
		out = append(out, mechanic.BoardCard{
			ID:          c.ID,
			CardID:      c.ID,
			Title:       c.Title,
			Fields:      c.Fields,
			Zone:        "player",
			FaceUp:      true,
			Interactive: e.canInteractLocked(c.ID),
			Highlighted: true,
		})
	}
	if e.cpuCard != "" {
		c := e.cards[e.cpuCard]
		out = append(out, mechanic.BoardCard{
			ID:          c.ID,
			CardID:      c.ID,
			Title:       c.Title,
			Fields:      c.Fields,
			Zone:        "cpu",
			FaceUp:      cpuFaceUp,
			Highlighted: true,
		})
	}
	for _, id := range e.tiePile {
		c := e.cards[id]
		out = append(out, mechanic.BoardCard{
			ID:     c.ID,
			CardID: c.ID,
			Title:  c.Title,
			Fields: c.Fields,
			Zone:   "tie",
			FaceUp: true,
		})
	}
	return out
}

func (e *Engine) canInteractLocked(cardID string) bool {
	if e.failure != "" || cardID == "" {
		return false
	}
	switch e.phase {
	case phaseCPUReveal, phaseReveal, phaseCollecting, phaseRoundEnd:
		return cardID == e.playerCard
	default:
		return false
	}
}

// Settings returns the configured values.
func (e *Engine) Settings() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return map[string]interface{}{
		"difficulty":    string(e.difficulty),
		"roundLimit":    e.roundLimit,
		"cpuThinkPause": e.thinkPause,
		"autoAdvance":   e.autoAdvance,
	}
}

// ApplySettings validates and merges a patch. The whole patch applies or
// none of it does; the difficulty takes effect at the next deal, the
// pacing toggles immediately.
func (e *Engine) ApplySettings(patch map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	difficulty := e.difficulty
	roundLimit := e.roundLimit
	thinkPause := e.thinkPause
	autoAdvance := e.autoAdvance
	for k, v := range patch {
		switch k {
		case "difficulty":
			s, ok := mechanic.SettingString(v)
			if !ok {
				return fmt.Errorf("competing: difficulty must be a string")
			}
			d, ok := ParseDifficulty(s)
			if !ok {
				return fmt.Errorf("competing: unknown difficulty %q", s)
			}
			difficulty = d
		case "roundLimit":
			n, ok := mechanic.SettingInt(v)
			if !ok {
				return fmt.Errorf("competing: roundLimit must be an integer")
			}
			if n < 0 {
				n = 0
			}
			roundLimit = n
		case "cpuThinkPause":
			b, ok := mechanic.SettingBool(v)
			if !ok {
				return fmt.Errorf("competing: cpuThinkPause must be a boolean")
			}
			thinkPause = b
		case "autoAdvance":
			b, ok := mechanic.SettingBool(v)
			if !ok {
				return fmt.Errorf("competing: autoAdvance must be a boolean")
			}
			autoAdvance = b
		default:
			return fmt.Errorf("competing: unknown setting %q", k)
		}
	}
	e.difficulty = difficulty
	e.roundLimit = roundLimit
	e.thinkPause = thinkPause
	e.autoAdvance = autoAdvance
	return nil
}

func (e *Engine) settingsDifficulty() Difficulty {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.difficulty
}
