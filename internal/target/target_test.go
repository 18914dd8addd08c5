package target

import (
	"testing"

	"idbcore/internal/coreerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_NeverSkipsBootingFromShutdownToBooted(t *testing.T) {
	tg := New("udid-1", KindSimulator, "17.0")
	require.NoError(t, tg.Transition(StateShutdown))

	err := tg.Transition(StateBooted)
	require.Error(t, err)
	assert.True(t, coreerr.IsKind(err, coreerr.KindTargetLifecycle))
	assert.Equal(t, StateShutdown, tg.State())
}

func TestTarget_BootSequenceThroughBooting(t *testing.T) {
	tg := New("udid-2", KindSimulator, "17.0")
	require.NoError(t, tg.Transition(StateShutdown))
	require.NoError(t, tg.Transition(StateBooting))
	require.NoError(t, tg.Transition(StateBooted))
	assert.Equal(t, StateBooted, tg.State())
}

func TestTarget_CapabilitiesSnapshot(t *testing.T) {
	tg := New("udid-3", KindDevice, "16.4", "install-app", "tail-log")
	assert.True(t, tg.HasCapability("install-app"))
	assert.False(t, tg.HasCapability("record-video"))

	tg.SetCapabilities([]string{"record-video"})
	assert.False(t, tg.HasCapability("install-app"))
	assert.True(t, tg.HasCapability("record-video"))
}

func TestTarget_SameStateTransitionIsNoop(t *testing.T) {
	tg := New("udid-4", KindSimulator, "17.0")
	require.NoError(t, tg.Transition(StateUnknown))
	assert.Equal(t, StateUnknown, tg.State())
}
