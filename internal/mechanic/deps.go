package mechanic

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/REPPL/itemdeck-server-go/internal/cardpool"
)

// Deps carries everything a mechanic needs from its host. The zero value
// is usable after WithDefaults; tests swap in a ManualScheduler, a fixed
// clock or a seeded Rand to make timing and shuffles deterministic.
type Deps struct {
	// Pool is the card collection the mechanic plays with.
	Pool cardpool.Provider

	// Logger receives structured progress and warning logs.
	Logger *zap.Logger

	// Scheduler runs the mechanic's delayed transitions.
	Scheduler Scheduler

	// Now supplies the current time for scoring and timestamps.
	Now func() time.Time

	// Rand drives shuffles and AI choices. Mechanics call it only while
	// holding their own state lock, so a plain rand.Rand is fine.
	Rand *rand.Rand
}

// WithDefaults fills the fields a caller left nil. A missing pool
// becomes an empty one, so mechanics surface it as an undersized-pool
// failure state instead of a panic.
func (d Deps) WithDefaults() Deps {
	if d.Pool == nil {
		d.Pool = cardpool.NewStaticProvider(nil, cardpool.DetectOptions{})
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Scheduler == nil {
		d.Scheduler = NewTimerScheduler()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return d
}
