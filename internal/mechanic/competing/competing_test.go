package competing

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic"
)

// battlePool builds n cards with strictly decreasing power and a constant
// armour value, so any matchup is decisive on power and tied on armour.
func battlePool(n int) []cardpool.Card {
	cards := make([]cardpool.Card, n)
	for i := range cards {
		cards[i] = cardpool.Card{
			ID:    fmt.Sprintf("card-%d", i+1),
			Title: fmt.Sprintf("Card %d", i+1),
			Fields: map[string]string{
				"power":  fmt.Sprintf("%d", (n-i)*10),
				"armour": "5",
			},
		}
	}
	return cards
}

func newTestEngine(t *testing.T, cards []cardpool.Card, patch map[string]interface{}) (*Engine, *mechanic.ManualScheduler) {
	t.Helper()
	sched := &mechanic.ManualScheduler{}
	e := New(mechanic.Deps{
		Pool:      cardpool.NewStaticProvider(cards, cardpool.DetectOptions{}),
		Logger:    zaptest.NewLogger(t),
		Scheduler: sched,
		Rand:      rand.New(rand.NewSource(11)),
	})
	if patch != nil {
		require.NoError(t, e.ApplySettings(patch))
	}
	e.Activate()
	e.InitGame()
	return e, sched
}

func snapshot(t *testing.T, e *Engine) Snapshot {
	t.Helper()
	s, ok := e.State().(Snapshot)
	require.True(t, ok, "state must be a competing snapshot")
	return s
}

// forceDecks rewrites the in-play cards and decks so a scenario can script
// exact matchups instead of fighting the shuffle. Every dealt card must
// appear in one of the two lists.
func forceDecks(e *Engine, player, cpu []string) {
	e.mu.Lock()
	e.playerCard, e.playerDeck = player[0], append([]string(nil), player[1:]...)
	e.cpuCard, e.cpuDeck = cpu[0], append([]string(nil), cpu[1:]...)
	e.tiePile = nil
	e.mu.Unlock()
}

func heldCards(e *Engine) (player, cpu, tie []string) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]string(nil), e.playerDeck...),
		append([]string(nil), e.cpuDeck...),
		append([]string(nil), e.tiePile...)
}

// assertPartition checks that every dealt card sits in exactly one
// container.
func assertPartition(t *testing.T, e *Engine, total int) {
	t.Helper()
	player, cpu, tie := heldCards(e)
	s := snapshot(t, e)

	ids := make([]string, 0, total)
	ids = append(ids, player...)
	ids = append(ids, cpu...)
	ids = append(ids, tie...)
	if s.PlayerCard != "" {
		ids = append(ids, s.PlayerCard)
	}
	if s.CPUCard != "" {
		ids = append(ids, s.CPUCard)
	}

	require.Len(t, ids, total)
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			t.Fatalf("card %s held in two places", id)
		}
		seen[id] = struct{}{}
	}
}

func TestDealOpensRoundOne(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(8), nil)

	s := snapshot(t, e)
	require.Equal(t, "player_select", s.PhaseName)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, "player", s.Turn)
	assert.Equal(t, 3, s.PlayerDeckSize)
	assert.Equal(t, 3, s.CPUDeckSize)
	assert.Equal(t, 0, s.TiePileSize)
	assert.NotEmpty(t, s.PlayerCard)
	assert.NotEmpty(t, s.CPUCard)
	assert.Empty(t, s.History)
	assert.Empty(t, s.Winner)
	assert.Nil(t, s.RoundResult)
	assert.False(t, s.Complete())
	assert.Zero(t, sched.Pending())

	require.Len(t, s.Fields, 2)
	assert.Equal(t, "armour", s.Fields[0].Key)
	assert.Equal(t, "power", s.Fields[1].Key)

	assertPartition(t, e, 8)
}

func TestBattleFlow(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), nil)
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	// Round 1: power 40 beats 30, player captures both cards.
	require.NoError(t, e.SelectStat("power"))
	s := snapshot(t, e)
	require.Equal(t, "reveal", s.PhaseName)
	assert.Equal(t, "power", s.SelectedStat)
	assert.Equal(t, []string{"power"}, s.History)
	require.NotNil(t, s.RoundResult)
	assert.Equal(t, 40.0, s.RoundResult.PlayerValue)
	assert.Equal(t, 30.0, s.RoundResult.CPUValue)
	assert.Equal(t, "player", s.RoundResult.Winner)
	assert.Equal(t, []time.Duration{900 * time.Millisecond}, sched.PendingDelays())

	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "collecting", s.PhaseName)
	assert.Empty(t, s.PlayerCard)
	assert.Empty(t, s.CPUCard)
	assert.Equal(t, Tally{Player: 2}, s.CardsWon)
	assert.Equal(t, Tally{Player: 1}, s.RoundsWon)
	assert.Equal(t, []time.Duration{600 * time.Millisecond}, sched.PendingDelays())

	// Capture order: own card first, then the opponent's.
	player, cpu, _ := heldCards(e)
	assert.Equal(t, []string{"card-3", "card-1", "card-2"}, player)
	assert.Equal(t, []string{"card-4"}, cpu)
	assertPartition(t, e, 4)

	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "round_end", s.PhaseName)
	assert.Equal(t, []time.Duration{2 * time.Second}, sched.PendingDelays())

	// Round 2: the loser selects, so the CPU thinks and picks.
	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "cpu_select", s.PhaseName)
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, "cpu", s.Turn)
	assert.Equal(t, "card-3", s.PlayerCard)
	assert.Equal(t, "card-4", s.CPUCard)
	assert.Equal(t, []time.Duration{1200 * time.Millisecond}, sched.PendingDelays())

	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "cpu_reveal", s.PhaseName)
	// card-4 sits at the very bottom of the power range, so the medium
	// strategy prefers the flat armour axis.
	assert.Equal(t, "armour", s.SelectedStat)
	assert.True(t, e.CanInteract("card-3"))
	assert.False(t, e.CanInteract("card-4"))

	// Armour always ties; the parked cards exhaust the CPU side.
	require.NoError(t, e.ConfirmSelection())
	s = snapshot(t, e)
	require.Equal(t, "reveal", s.PhaseName)
	assert.Equal(t, "tie", s.RoundResult.Winner)

	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "collecting", s.PhaseName)
	assert.Equal(t, 2, s.TiePileSize)

	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "game_over", s.PhaseName)
	assert.Equal(t, "player", s.Winner)
	assert.True(t, s.Complete())
	assert.Equal(t, Tally{Player: 1}, s.RoundsWon)
	assert.Equal(t, Tally{Player: 2}, s.CardsWon)
	assertPartition(t, e, 4)
}

func TestTieBanksCardsForNextWinner(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), nil)
	forceDecks(e, []string{"card-3", "card-1"}, []string{"card-4", "card-2"})

	// Round 1 ties on armour and parks both cards.
	require.NoError(t, e.SelectStat("armour"))
	s := snapshot(t, e)
	assert.Equal(t, "tie", s.RoundResult.Winner)

	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	assert.Equal(t, 2, s.TiePileSize)
	assert.Equal(t, Tally{}, s.CardsWon)

	require.True(t, sched.FireNext())
	require.Equal(t, "round_end", snapshot(t, e).PhaseName)
	require.True(t, sched.FireNext())

	// A tie keeps the selector: round 2 is still the player's.
	s = snapshot(t, e)
	require.Equal(t, "player_select", s.PhaseName)
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, "player", s.Turn)
	assert.Equal(t, "card-1", s.PlayerCard)
	assert.Equal(t, "card-2", s.CPUCard)

	// Round 2 is decisive and sweeps the pile: 2 in-play + 2 banked.
	require.NoError(t, e.SelectStat("power"))
	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	assert.Equal(t, Tally{Player: 4}, s.CardsWon)
	assert.Equal(t, 0, s.TiePileSize)
	assert.Equal(t, 4, s.PlayerDeckSize)

	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "game_over", s.PhaseName)
	assert.Equal(t, "player", s.Winner)
	assertPartition(t, e, 4)
}

func TestPlayerKnockedOut(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), map[string]interface{}{"roundLimit": 0})
	forceDecks(e, []string{"card-4", "card-2"}, []string{"card-3", "card-1"})

	// Round 1: 10 loses to 20.
	require.NoError(t, e.SelectStat("power"))
	s := snapshot(t, e)
	assert.Equal(t, "cpu", s.RoundResult.Winner)
	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	assert.Equal(t, Tally{CPU: 2}, s.CardsWon)

	_, cpu, _ := heldCards(e)
	assert.Equal(t, []string{"card-1", "card-4", "card-3"}, cpu)

	require.True(t, sched.FireNext())
	require.True(t, sched.FireNext())

	// The player lost, so the player selects round 2 with no think pause.
	s = snapshot(t, e)
	require.Equal(t, "player_select", s.PhaseName)
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, "player", s.Turn)
	assert.Equal(t, "card-2", s.PlayerCard)
	assert.Equal(t, "card-1", s.CPUCard)
	assert.Zero(t, sched.Pending())

	// Round 2: 30 loses to 40 and the player's side is empty.
	require.NoError(t, e.SelectStat("power"))
	require.True(t, sched.FireNext())
	require.True(t, sched.FireNext())
	s = snapshot(t, e)
	require.Equal(t, "game_over", s.PhaseName)
	assert.Equal(t, "cpu", s.Winner)
	assert.Equal(t, Tally{CPU: 4}, s.CardsWon)
	assertPartition(t, e, 4)
}

func TestRoundLimitTally(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), map[string]interface{}{"roundLimit": 1})
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	require.NoError(t, e.SelectStat("power"))
	require.True(t, sched.FireNext())
	require.True(t, sched.FireNext())

	s := snapshot(t, e)
	require.Equal(t, "game_over", s.PhaseName)
	assert.Equal(t, "player", s.Winner)
	assert.Equal(t, Tally{Player: 2}, s.CardsWon)
	assertPartition(t, e, 4)
}

func TestRoundLimitDraw(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), map[string]interface{}{"roundLimit": 1})

	// A tie awards nothing, so the limit tally is 0-0.
	require.NoError(t, e.SelectStat("armour"))
	require.True(t, sched.FireNext())
	require.True(t, sched.FireNext())

	s := snapshot(t, e)
	require.Equal(t, "game_over", s.PhaseName)
	assert.Equal(t, "draw", s.Winner)
	assert.Equal(t, 2, s.TiePileSize)
	assert.True(t, s.Complete())
	assertPartition(t, e, 4)
}

func TestAdvanceFastForwards(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(8), nil)
	forceDecks(e,
		[]string{"card-1", "card-3", "card-5", "card-7"},
		[]string{"card-2", "card-4", "card-6", "card-8"})

	require.NoError(t, e.SelectStat("power"))
	require.Equal(t, "reveal", snapshot(t, e).PhaseName)

	e.Advance()
	require.Equal(t, "collecting", snapshot(t, e).PhaseName)
	assert.Equal(t, 1, sched.Pending())

	e.Advance()
	require.Equal(t, "round_end", snapshot(t, e).PhaseName)

	e.Advance()
	s := snapshot(t, e)
	require.Equal(t, "cpu_select", s.PhaseName)
	assert.Equal(t, 2, s.Round)

	// Skipping the think pause lands on the CPU's pick immediately.
	e.Advance()
	s = snapshot(t, e)
	require.Equal(t, "cpu_reveal", s.PhaseName)
	assert.Equal(t, "power", s.SelectedStat)
	assert.Zero(t, sched.Pending())

	// Advance has no shortcut past a waiting confirmation.
	e.Advance()
	require.Equal(t, "cpu_reveal", snapshot(t, e).PhaseName)

	require.NoError(t, e.ConfirmSelection())
	s = snapshot(t, e)
	require.Equal(t, "reveal", s.PhaseName)
	assert.Equal(t, "player", s.RoundResult.Winner)
}

func TestThinkPauseDisabled(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), map[string]interface{}{"cpuThinkPause": false})
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	require.NoError(t, e.SelectStat("power"))
	require.True(t, sched.FireNext())
	require.True(t, sched.FireNext())
	require.True(t, sched.FireNext())

	s := snapshot(t, e)
	require.Equal(t, "cpu_reveal", s.PhaseName)
	assert.Equal(t, 2, s.Round)
	assert.Equal(t, "armour", s.SelectedStat)
	assert.Zero(t, sched.Pending())
}

func TestAutoAdvanceDisabled(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), map[string]interface{}{"autoAdvance": false})
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	require.NoError(t, e.SelectStat("power"))
	require.True(t, sched.FireNext())
	require.True(t, sched.FireNext())

	// The banner stays up until the player moves on.
	require.Equal(t, "round_end", snapshot(t, e).PhaseName)
	assert.Zero(t, sched.Pending())

	e.Advance()
	s := snapshot(t, e)
	require.Equal(t, "cpu_select", s.PhaseName)
	assert.Equal(t, 2, s.Round)
}

// leakyScheduler loses cancellations, standing in for a timer that was
// already mid-flight when it was cancelled. The engine's re-validation
// must catch what cancellation cannot.
type leakyScheduler struct{ fns []func() }

func (s *leakyScheduler) Schedule(d time.Duration, fn func()) func() {
	s.fns = append(s.fns, fn)
	return func() {}
}

func (s *leakyScheduler) fireAll() {
	fns := s.fns
	s.fns = nil
	for _, fn := range fns {
		fn()
	}
}

func TestStaleTimerStandsDownAfterReset(t *testing.T) {
	sched := &leakyScheduler{}
	e := New(mechanic.Deps{
		Pool:      cardpool.NewStaticProvider(battlePool(4), cardpool.DetectOptions{}),
		Logger:    zaptest.NewLogger(t),
		Scheduler: sched,
		Rand:      rand.New(rand.NewSource(11)),
	})
	e.Activate()
	e.InitGame()
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	require.NoError(t, e.SelectStat("power"))
	require.Equal(t, "reveal", snapshot(t, e).PhaseName)

	// Reset while the reveal timer is in flight; its cancellation is lost.
	e.Reset()
	sched.fireAll()

	s := snapshot(t, e)
	require.Equal(t, "player_select", s.PhaseName)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, Tally{}, s.CardsWon)
	assert.Nil(t, s.RoundResult)

	// The fresh game still runs normally.
	require.NoError(t, e.SelectStat("power"))
	sched.fireAll()
	s = snapshot(t, e)
	require.Equal(t, "collecting", s.PhaseName)
	assert.Equal(t, 2, s.CardsWon.Player+s.CardsWon.CPU)
	assertPartition(t, e, 4)
}

func TestSelectStatValidation(t *testing.T) {
	e, _ := newTestEngine(t, battlePool(4), nil)
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	err := e.SelectStat("charm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown stat")

	require.Error(t, e.ConfirmSelection())

	require.NoError(t, e.SelectStat("power"))
	require.Error(t, e.SelectStat("power"), "selection is closed once the round resolves")

	// Only committed picks reach the history.
	assert.Equal(t, []string{"power"}, snapshot(t, e).History)
}

func TestAdvanceIgnoredWhileSelecting(t *testing.T) {
	e, _ := newTestEngine(t, battlePool(4), nil)

	e.Advance()
	s := snapshot(t, e)
	assert.Equal(t, "player_select", s.PhaseName)
	assert.Equal(t, 1, s.Round)
}

func TestUndersizedPoolFails(t *testing.T) {
	e, _ := newTestEngine(t, battlePool(3), nil)

	s := snapshot(t, e)
	assert.Equal(t, "setup", s.PhaseName)
	assert.Contains(t, s.Failure(), "at least 4 cards")
	assert.False(t, s.Complete())

	err := e.SelectStat("power")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not playable")
	assert.False(t, e.CanInteract("card-1"))
	assert.Empty(t, e.Board())
}

func TestNoNumericFieldsFails(t *testing.T) {
	cards := make([]cardpool.Card, 4)
	for i := range cards {
		cards[i] = cardpool.Card{
			ID:     fmt.Sprintf("plain-%d", i+1),
			Title:  fmt.Sprintf("Plain %d", i+1),
			Fields: map[string]string{"flavour": fmt.Sprintf("kind-%d", i)},
		}
	}
	e, _ := newTestEngine(t, cards, nil)

	s := snapshot(t, e)
	assert.Equal(t, "setup", s.PhaseName)
	assert.Contains(t, s.Failure(), "numeric field")
	require.Error(t, e.SelectStat("flavour"))
}

func TestSettings(t *testing.T) {
	e, _ := newTestEngine(t, battlePool(4), nil)

	got := e.Settings()
	assert.Equal(t, "medium", got["difficulty"])
	assert.Equal(t, 10, got["roundLimit"])
	assert.Equal(t, true, got["cpuThinkPause"])
	assert.Equal(t, true, got["autoAdvance"])

	require.NoError(t, e.ApplySettings(map[string]interface{}{
		"difficulty":    "hard",
		"roundLimit":    5,
		"cpuThinkPause": false,
		"autoAdvance":   false,
	}))
	got = e.Settings()
	assert.Equal(t, "hard", got["difficulty"])
	assert.Equal(t, 5, got["roundLimit"])
	assert.Equal(t, false, got["cpuThinkPause"])
	assert.Equal(t, false, got["autoAdvance"])

	// Negative limits mean no limit.
	require.NoError(t, e.ApplySettings(map[string]interface{}{"roundLimit": -3}))
	assert.Equal(t, 0, e.Settings()["roundLimit"])

	require.Error(t, e.ApplySettings(map[string]interface{}{"difficulty": "impossible"}))
	require.Error(t, e.ApplySettings(map[string]interface{}{"difficulty": 3}))
	require.Error(t, e.ApplySettings(map[string]interface{}{"roundLimit": "ten"}))
	require.Error(t, e.ApplySettings(map[string]interface{}{"cpuThinkPause": "yes"}))
	require.Error(t, e.ApplySettings(map[string]interface{}{"autoAdvance": 1}))
	require.Error(t, e.ApplySettings(map[string]interface{}{"volume": 11}))

	// A patch with any bad key applies nothing.
	err := e.ApplySettings(map[string]interface{}{"roundLimit": 7, "volume": 11})
	require.Error(t, err)
	assert.Equal(t, 0, e.Settings()["roundLimit"])

	// The new difficulty builds its strategy at the next deal.
	e.Reset()
	e.mu.RLock()
	_, isHard := e.strategy.(*hardStrategy)
	e.mu.RUnlock()
	assert.True(t, isHard)
}

func TestBoardZones(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), nil)
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	board := e.Board()
	require.Len(t, board, 2)
	assert.Equal(t, "player", board[0].Zone)
	assert.True(t, board[0].FaceUp)
	assert.True(t, board[0].Highlighted)
	assert.False(t, board[0].Interactive)
	assert.Equal(t, "cpu", board[1].Zone)
	assert.False(t, board[1].FaceUp, "cpu card stays hidden until the reveal")

	require.NoError(t, e.SelectStat("armour"))
	board = e.Board()
	require.Len(t, board, 2)
	assert.True(t, board[1].FaceUp)
	assert.True(t, board[0].Interactive)

	// After a tie collects, both cards sit face-up on the pile.
	require.True(t, sched.FireNext())
	board = e.Board()
	require.Len(t, board, 2)
	for _, bc := range board {
		assert.Equal(t, "tie", bc.Zone)
		assert.True(t, bc.FaceUp)
	}
}

func TestCardTapRouting(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(8), nil)
	forceDecks(e,
		[]string{"card-1", "card-3", "card-5", "card-7"},
		[]string{"card-2", "card-4", "card-6", "card-8"})
	actions := e.CardActions()

	// Taps do nothing while a stat pick is open.
	actions.Click("card-1")
	require.Equal(t, "player_select", snapshot(t, e).PhaseName)

	// Reach the CPU's held pick.
	require.NoError(t, e.SelectStat("power"))
	e.Advance()
	e.Advance()
	e.Advance()
	e.Advance()
	require.Equal(t, "cpu_reveal", snapshot(t, e).PhaseName)

	// Tapping the opponent's card is ignored; tapping your own confirms.
	own := snapshot(t, e).PlayerCard
	actions.Click("card-4")
	require.Equal(t, "cpu_reveal", snapshot(t, e).PhaseName)
	assert.True(t, actions.Interactive(own))
	actions.Click(own)
	require.Equal(t, "reveal", snapshot(t, e).PhaseName)

	// In a timed pause the own card fast-forwards.
	actions.Click(own)
	require.Equal(t, "collecting", snapshot(t, e).PhaseName)
	assert.Equal(t, 1, sched.Pending())
}

func TestSubscribeNotifiesOnCommittedChanges(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), nil)
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	var n int
	unsub := e.Subscribe(func() { n++ })

	require.NoError(t, e.SelectStat("power"))
	assert.Equal(t, 1, n)

	// Rejected calls commit nothing and stay silent.
	require.Error(t, e.SelectStat("power"))
	assert.Equal(t, 1, n)

	require.True(t, sched.FireNext())
	assert.Equal(t, 2, n)

	unsub()
	require.True(t, sched.FireNext())
	assert.Equal(t, 2, n)
}

func TestDeactivateClears(t *testing.T) {
	e, sched := newTestEngine(t, battlePool(4), nil)
	forceDecks(e, []string{"card-1", "card-3"}, []string{"card-2", "card-4"})

	var n int
	e.Subscribe(func() { n++ })

	require.NoError(t, e.SelectStat("power"))
	require.Equal(t, 1, n)

	e.Deactivate()
	s := snapshot(t, e)
	assert.Equal(t, "setup", s.PhaseName)
	assert.Equal(t, 0, s.Round)
	assert.Equal(t, 0, s.PlayerDeckSize)
	assert.Empty(t, s.PlayerCard)

	// The in-flight reveal timer was cancelled and listeners dropped.
	sched.Fire()
	e.InitGame()
	assert.Equal(t, 1, n)
	require.Equal(t, "player_select", snapshot(t, e).PhaseName)
}

func TestPartitionHeldThroughRandomGames(t *testing.T) {
	for _, d := range Difficulties {
		t.Run(string(d), func(t *testing.T) {
			e, sched := newTestEngine(t, battlePool(10), map[string]interface{}{
				"difficulty": string(d),
			})

			for step := 0; step < 300; step++ {
				s := snapshot(t, e)
				if s.Complete() {
					break
				}
				switch s.PhaseName {
				case "player_select":
					stat := "power"
					if s.Round%2 == 0 {
						stat = "armour"
					}
					require.NoError(t, e.SelectStat(stat))
				case "cpu_reveal":
					require.NoError(t, e.ConfirmSelection())
				case "cpu_select", "reveal", "collecting", "round_end":
					require.True(t, sched.FireNext(), "phase %s should have a pending transition", s.PhaseName)
				default:
					t.Fatalf("unexpected phase %s", s.PhaseName)
				}
				assertPartition(t, e, 10)
			}

			s := snapshot(t, e)
			require.True(t, s.Complete(), "game should finish within the round limit")
			assert.Contains(t, []string{"player", "cpu", "draw"}, s.Winner)
		})
	}
}
