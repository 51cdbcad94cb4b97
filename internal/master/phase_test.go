package master

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yongdono/kungfu/internal/location"
	"github.com/yongdono/kungfu/internal/schema"
	"github.com/yongdono/kungfu/pkg/exception"
)

func TestAppsPhases(t *testing.T) {
	apps := NewApps()
	loc := location.New(location.ModeLive, location.CategoryTD, "sim", "td")
	reg := *schema.RegisterOf(loc, 7, 0, 0)

	require.Equal(t, PhaseUnregistered, apps.Phase(loc.UID))
	require.ErrorIs(t, apps.Activate(loc.UID), exception.ErrNotRegistered)

	a, err := apps.Begin(loc, reg)
	require.NoError(t, err)
	require.Equal(t, PhaseRegistering, a.Phase)
	require.Equal(t, location.MasterCommand(loc.UID).UID, a.Command.UID)
	require.False(t, apps.Live(loc.UID))

	_, err = apps.Begin(loc, reg)
	require.ErrorIs(t, err, exception.ErrDuplicateRegistration)

	require.NoError(t, apps.Activate(loc.UID))
	require.True(t, apps.Live(loc.UID))
	require.ErrorIs(t, apps.Activate(loc.UID), exception.ErrInvalidTransition)
	require.Equal(t, []uint32{loc.UID}, apps.LiveUIDs())

	_, err = apps.Retire(loc.UID)
	require.NoError(t, err)
	require.Equal(t, PhaseDeregistered, apps.Phase(loc.UID))
	require.Zero(t, apps.LiveCount())

	// a deregistered location may register again
	_, err = apps.Begin(loc, reg)
	require.NoError(t, err)
	apps.Abort(loc.UID)
	require.Equal(t, PhaseUnregistered, apps.Phase(loc.UID))
}

func TestPhaseString(t *testing.T) {
	testCases := []struct {
		phase Phase
		want  string
	}{
		{PhaseUnregistered, "unregistered"},
		{PhaseRegistering, "registering"},
		{PhaseLive, "live"},
		{PhaseDeregistered, "deregistered"},
		{Phase(9), "unknown"},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.want, tc.phase.String())
	}
}
