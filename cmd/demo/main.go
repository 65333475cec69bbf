// Command demo plays one competing game headlessly against the hard CPU
// and prints each round as it resolves. Timed transitions run on a manual
// scheduler, so the whole game finishes instantly.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic"
	"github.com/REPPL/itemdeck-server-go/internal/mechanic/competing"
)

func main() {
	pool := cardpool.Sample()
	sched := &mechanic.ManualScheduler{}
	host := mechanic.NewHost(mechanic.Deps{
		Pool:      pool,
		Logger:    zap.NewNop(),
		Scheduler: sched,
		Rand:      rand.New(rand.NewSource(time.Now().UnixNano())),
	})

	if err := host.ApplySettings(competing.ID, map[string]interface{}{
		"difficulty":    "hard",
		"cpuThinkPause": false,
	}); err != nil {
		log.Fatalf("apply settings: %v", err)
	}
	if _, err := host.Activate(competing.ID); err != nil {
		log.Fatalf("activate: %v", err)
	}

	inst, _, _ := host.Active()
	sel, ok := inst.(mechanic.StatSelector)
	if !ok {
		log.Fatal("competing mechanic lost its stat selector")
	}

	fields := pool.NumericFields()
	log.Printf("competing demo: %d cards, %d stats, hard cpu",
		len(pool.Cards()), len(fields))

	for step := 0; step < 500; step++ {
		snap := inst.State().(competing.Snapshot)
		if snap.FailureText != "" {
			log.Fatalf("not playable: %s", snap.FailureText)
		}

		switch snap.PhaseName {
		case "player_select":
			// Rotate through the stats so the cpu has a pattern to learn.
			key := fields[snap.Round%len(fields)].Key
			if err := sel.SelectStat(key); err != nil {
				log.Fatalf("select %s: %v", key, err)
			}
			printRound(inst.State().(competing.Snapshot))
		case "cpu_reveal":
			if err := sel.ConfirmSelection(); err != nil {
				log.Fatalf("confirm: %v", err)
			}
			printRound(inst.State().(competing.Snapshot))
		case "game_over":
			log.Printf("game over after round %d: winner %s (cards %d-%d, rounds %d-%d)",
				snap.Round, snap.Winner,
				snap.CardsWon.Player, snap.CardsWon.CPU,
				snap.RoundsWon.Player, snap.RoundsWon.CPU)
			out, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				log.Fatalf("marshal final state: %v", err)
			}
			fmt.Println(string(out))
			return
		}

		// Fire whatever the turn scheduled: reveal, collect, next round.
		for sched.FireNext() {
		}
	}

	log.Fatal("demo did not finish within 500 steps")
}

func printRound(snap competing.Snapshot) {
	rr := snap.RoundResult
	if rr == nil {
		return
	}
	log.Printf("round %d: %s %.2f vs %.2f -> %s (decks %d/%d, pile %d)",
		snap.Round, rr.Stat, rr.PlayerValue, rr.CPUValue, rr.Winner,
		snap.PlayerDeckSize, snap.CPUDeckSize, snap.TiePileSize)
}
