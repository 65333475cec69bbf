package mechanic

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var hostMechanicsOnce sync.Once

// host tests share a pair of null mechanics in the global catalogue.
func registerHostMechanics() {
	hostMechanicsOnce.Do(func() {
		for _, id := range []string{"host-a", "host-b"} {
			m := testManifest(id)
			Register(m, NullFactory(m))
		}
	})
}

func newTestHost(t *testing.T) *Host {
	registerHostMechanics()
	return NewHost(Deps{Logger: zaptest.NewLogger(t)})
}

func activeNull(t *testing.T, h *Host) *NullMechanic {
	m, _, ok := h.Active()
	require.True(t, ok, "expected an active mechanic")
	nm, ok := m.(*NullMechanic)
	require.True(t, ok, "expected a null mechanic")
	return nm
}

func TestHostActivateAndSwitch(t *testing.T) {
	h := newTestHost(t)

	man, err := h.Activate("host-a")
	require.NoError(t, err)
	assert.Equal(t, "host-a", man.ID)
	assert.Equal(t, "host-a", h.ActiveID())

	first := h.InstanceID()
	assert.NotEmpty(t, first)

	_, err = h.Activate("host-b")
	require.NoError(t, err)
	assert.Equal(t, "host-b", h.ActiveID())
	assert.NotEqual(t, first, h.InstanceID())
}

func TestHostActivateUnknownLeavesCurrent(t *testing.T) {
	h := newTestHost(t)
	_, err := h.Activate("host-a")
	require.NoError(t, err)

	_, err = h.Activate("host-missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownMechanic))
	assert.Equal(t, "host-a", h.ActiveID())
}

func TestHostActivateSameIDRestarts(t *testing.T) {
	h := newTestHost(t)
	_, err := h.Activate("host-a")
	require.NoError(t, err)

	first := h.InstanceID()
	activeNull(t, h).CardActions().Click("card-1")
	require.Len(t, activeNull(t, h).Clicks(), 1)

	_, err = h.Activate("host-a")
	require.NoError(t, err)
	assert.NotEqual(t, first, h.InstanceID())
	assert.Empty(t, activeNull(t, h).Clicks(), "fresh instance must not inherit progress")
}

func TestHostDeactivate(t *testing.T) {
	h := newTestHost(t)
	_, err := h.Activate("host-a")
	require.NoError(t, err)

	notified := 0
	h.Subscribe(func() { notified++ })

	h.Deactivate()
	_, _, ok := h.Active()
	assert.False(t, ok)
	assert.Empty(t, h.ActiveID())
	assert.Equal(t, 1, notified, "deactivation must notify host subscribers")

	h.Deactivate() // nothing active, must be a no-op
	assert.Equal(t, 1, notified)
}

func TestHostSettingsPersistAcrossActivations(t *testing.T) {
	h := newTestHost(t)

	// Patch while inactive; the host validates through a probe instance.
	require.NoError(t, h.ApplySettings("host-a", map[string]interface{}{"theme": "dark"}))

	s, err := h.Settings("host-a")
	require.NoError(t, err)
	assert.Equal(t, "dark", s["theme"])

	_, err = h.Activate("host-a")
	require.NoError(t, err)
	assert.Equal(t, "dark", activeNull(t, h).Settings()["theme"])

	// Patch the live instance, switch away and back, and the merged
	// settings must survive.
	require.NoError(t, h.ApplySettings("host-a", map[string]interface{}{"speed": 2}))
	_, err = h.Activate("host-b")
	require.NoError(t, err)

	s, err = h.Settings("host-a")
	require.NoError(t, err)
	assert.Equal(t, "dark", s["theme"])

	_, err = h.Activate("host-a")
	require.NoError(t, err)
	got := activeNull(t, h).Settings()
	assert.Equal(t, "dark", got["theme"])
	assert.Equal(t, 2, got["speed"])
}

func TestHostSettingsUnknownMechanic(t *testing.T) {
	h := newTestHost(t)

	_, err := h.Settings("host-missing")
	assert.True(t, errors.Is(err, ErrUnknownMechanic))

	err = h.ApplySettings("host-missing", map[string]interface{}{"x": 1})
	assert.True(t, errors.Is(err, ErrUnknownMechanic))
}

func TestHostForwardsMechanicChanges(t *testing.T) {
	h := newTestHost(t)
	_, err := h.Activate("host-a")
	require.NoError(t, err)

	notified := 0
	h.Subscribe(func() { notified++ })

	nm := activeNull(t, h)
	nm.SetPhase("spinning")
	nm.SetComplete(true)
	assert.Equal(t, 2, notified)

	// A replaced instance must not reach host subscribers anymore.
	_, err = h.Activate("host-b")
	require.NoError(t, err)
	after := notified
	nm.SetPhase("zombie")
	assert.Equal(t, after, notified)
}

func TestHostTransitionLog(t *testing.T) {
	h := newTestHost(t)
	_, err := h.Activate("host-a")
	require.NoError(t, err)

	nm := activeNull(t, h)
	nm.SetPhase("one")
	nm.SetComplete(true)

	log := h.Transitions()
	require.NotEmpty(t, log)
	last := log[len(log)-1]
	assert.Equal(t, "host-a", last.Mechanic)
	assert.Equal(t, h.InstanceID(), last.Instance)
	assert.True(t, last.Complete)
	assert.False(t, last.At.IsZero())
}

func TestHostTransitionLogCapped(t *testing.T) {
	h := newTestHost(t)
	_, err := h.Activate("host-a")
	require.NoError(t, err)

	nm := activeNull(t, h)
	for i := 0; i < transitionLogCap*2; i++ {
		nm.SetPhase("tick")
	}
	assert.Len(t, h.Transitions(), transitionLogCap)
}

func TestHostOpsWithoutActiveMechanic(t *testing.T) {
	h := newTestHost(t)
	assert.True(t, errors.Is(h.Reset(), ErrNoActiveMechanic))
	assert.True(t, errors.Is(h.InitGame(), ErrNoActiveMechanic))
}

func TestHostInitGameHonoursStickyCompletion(t *testing.T) {
	h := newTestHost(t)
	_, err := h.Activate("host-a")
	require.NoError(t, err)

	nm := activeNull(t, h)
	nm.SetComplete(true)

	require.NoError(t, h.InitGame())
	assert.True(t, nm.State().Complete(), "InitGame must not clear a completed game")

	require.NoError(t, h.Reset())
	assert.False(t, nm.State().Complete(), "Reset must start over")
}
