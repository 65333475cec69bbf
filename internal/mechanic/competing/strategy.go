package competing

import (
	"math/rand"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
)

// Difficulty selects the CPU opponent's stat-picking strategy.
type Difficulty string

const (
	DifficultySimple Difficulty = "simple"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Difficulties lists the levels in ascending strength.
var Difficulties = []Difficulty{
	DifficultySimple,
	DifficultyMedium,
	DifficultyHard,
}

// ParseDifficulty maps a settings value onto a known level.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(s) {
	case DifficultySimple, DifficultyMedium, DifficultyHard:
		return Difficulty(s), true
	}
	return "", false
}

// Strategy decides which stat the CPU plays. A fresh strategy is built
// per game, so learned player behaviour never leaks across games.
type Strategy interface {
	// ChooseStat picks the comparison field for the CPU's current card.
	ChooseStat(card cardpool.Card, fields []cardpool.NumericField) string
	// ObservePlayer records a stat the human player selected.
	ObservePlayer(key string)
}

func strategyFor(d Difficulty, rnd *rand.Rand) Strategy {
	switch d {
	case DifficultySimple:
		return &simpleStrategy{rnd: rnd}
	case DifficultyHard:
		return &hardStrategy{}
	default:
		return mediumStrategy{}
	}
}

// simpleStrategy picks uniformly at random.
type simpleStrategy struct {
	rnd *rand.Rand
}

func (s *simpleStrategy) ChooseStat(_ cardpool.Card, fields []cardpool.NumericField) string {
	if len(fields) == 0 {
		return ""
	}
	return fields[s.rnd.Intn(len(fields))].Key
}

func (s *simpleStrategy) ObservePlayer(string) {}

// mediumStrategy picks the field where the CPU card's normalised
// standing is strongest, which keeps the choice scale-invariant instead
// of biased toward fields with large absolute ranges.
type mediumStrategy struct{}

func (mediumStrategy) ChooseStat(card cardpool.Card, fields []cardpool.NumericField) string {
	return bestNormalised(card, fields, nil)
}

func (mediumStrategy) ObservePlayer(string) {}

// hardStrategy counts every stat the player has picked, predicts the one
// they are likeliest to pick next and plays the CPU's best remaining
// field, denying the player their favourite axis. With no history yet it
// behaves like mediumStrategy.
type hardStrategy struct {
	medium mediumStrategy
	seen   map[string]int
}

func (s *hardStrategy) ObservePlayer(key string) {
	if s.seen == nil {
		s.seen = make(map[string]int)
	}
	s.seen[key]++
}

func (s *hardStrategy) ChooseStat(card cardpool.Card, fields []cardpool.NumericField) string {
	if len(s.seen) == 0 {
		return s.medium.ChooseStat(card, fields)
	}
	predicted := s.predict(fields)
	if key := bestNormalised(card, fields, func(k string) bool { return k != predicted }); key != "" {
		return key
	}
	// The predicted field is the only one there is; play it anyway.
	return s.medium.ChooseStat(card, fields)
}

// predict returns the player's most-chosen field, breaking ties by the
// declared field order.
func (s *hardStrategy) predict(fields []cardpool.NumericField) string {
	best, bestCount := "", -1
	for _, f := range fields {
		if c := s.seen[f.Key]; c > bestCount {
			best, bestCount = f.Key, c
		}
	}
	return best
}

// bestNormalised returns the field where the card's standing is
// strongest: the highest normalised value, inverted on lower-is-better
// fields where a small value is the strong one. Fields are visited in
// declared order so ties resolve deterministically. include filters
// candidate keys; nil admits all.
func bestNormalised(card cardpool.Card, fields []cardpool.NumericField, include func(string) bool) string {
	best := ""
	bestScore := -1.0
	for _, f := range fields {
		if include != nil && !include(f.Key) {
			continue
		}
		v, ok := f.Value(card)
		if !ok {
			continue
		}
		score := f.Normalise(v)
		if !f.HigherIsBetter {
			score = 1 - score
		}
		if score > bestScore {
			best, bestScore = f.Key, score
		}
	}
	return best
}
