package memory

import "time"

// Difficulty names a flip-delay tier. The delay is how long a completed
// selection stays on the table before the scheduled match check resolves
// it; Extreme keeps the shortest delay and additionally hides the first
// card again after a brief viewing window.
type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyExpert  Difficulty = "expert"
	DifficultyExtreme Difficulty = "extreme"
)

// Difficulties lists the levels in ascending severity.
var Difficulties = []Difficulty{
	DifficultyEasy,
	DifficultyMedium,
	DifficultyHard,
	DifficultyExpert,
	DifficultyExtreme,
}

// ParseDifficulty maps a settings value onto a known level.
func ParseDifficulty(s string) (Difficulty, bool) {
	switch Difficulty(s) {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert, DifficultyExtreme:
		return Difficulty(s), true
	}
	return "", false
}

// flipDelay is the pause between completing a selection and the match
// check firing.
func (d Difficulty) flipDelay() time.Duration {
	switch d {
	case DifficultyEasy:
		return 2000 * time.Millisecond
	case DifficultyMedium:
		return 1500 * time.Millisecond
	case DifficultyHard:
		return 1000 * time.Millisecond
	case DifficultyExpert, DifficultyExtreme:
		return 500 * time.Millisecond
	default:
		return 1500 * time.Millisecond
	}
}

// autoHide reports whether the first selection is hidden again after the
// viewing window, forcing the player to memorise it.
func (d Difficulty) autoHide() bool { return d == DifficultyExtreme }
