package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/client"
	"github.com/coursekit/coursekit/registry"
)

// supersede makes the fixture's registry carry a token from another device,
// then moves past the grace window so the next validation can observe it.
func supersede(t *testing.T, f *testFixture) {
	t.Helper()
	userID := f.machine.Snapshot().User.ID
	require.NoError(t, f.store.Put(context.Background(),
		registry.SessionRecord{UserID: userID, Token: "other-device-token", IssuedAt: f.clock.Now()}))
	f.clock.Advance(testGraceWindow + time.Millisecond)
}

func TestRouteChangeTriggersValidation(t *testing.T) {
	f := setupTestFixture(t)
	f.machine.Start(context.Background())
	login(t, f.machine)
	supersede(t, f)

	guard, err := client.NewGuard(f.machine)
	require.NoError(t, err)

	guard.OnRouteChange(context.Background(), "/courses")
	require.Equal(t, client.PhaseInvalid, f.machine.Snapshot().Phase)
}

func TestAuthRoutesAreExcluded(t *testing.T) {
	f := setupTestFixture(t)
	f.machine.Start(context.Background())
	login(t, f.machine)
	supersede(t, f)

	guard, err := client.NewGuard(f.machine)
	require.NoError(t, err)

	guard.OnRouteChange(context.Background(), "/login")
	require.Equal(t, client.PhaseAuthenticated, f.machine.Snapshot().Phase,
		"validating on the auth surface risks interrupting an in-progress login")

	guard.OnRouteChange(context.Background(), "/signup")
	require.Equal(t, client.PhaseAuthenticated, f.machine.Snapshot().Phase)
}

func TestVisibilityRegainedTriggersValidation(t *testing.T) {
	f := setupTestFixture(t)
	f.machine.Start(context.Background())
	login(t, f.machine)

	guard, err := client.NewGuard(f.machine)
	require.NoError(t, err)
	guard.OnRouteChange(context.Background(), "/courses")

	supersede(t, f)
	guard.OnVisibilityRegained(context.Background())
	require.Equal(t, client.PhaseInvalid, f.machine.Snapshot().Phase)
}

func TestVisibilityRegainedOnAuthRouteIsSkipped(t *testing.T) {
	f := setupTestFixture(t)
	f.machine.Start(context.Background())
	login(t, f.machine)

	guard, err := client.NewGuard(f.machine)
	require.NoError(t, err)
	guard.OnRouteChange(context.Background(), "/login")

	supersede(t, f)
	guard.OnVisibilityRegained(context.Background())
	require.Equal(t, client.PhaseAuthenticated, f.machine.Snapshot().Phase)
}

func TestPeriodicTrigger(t *testing.T) {
	f := setupTestFixture(t)
	f.machine.Start(context.Background())
	login(t, f.machine)

	guard, err := client.NewGuard(f.machine, client.WithPollInterval(10*time.Millisecond))
	require.NoError(t, err)
	guard.OnRouteChange(context.Background(), "/courses")

	supersede(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go guard.Run(ctx)

	require.Eventually(t, func() bool {
		return f.machine.Snapshot().Phase == client.PhaseInvalid
	}, time.Second, 5*time.Millisecond)
}

func TestCustomAuthRouteMatcher(t *testing.T) {
	f := setupTestFixture(t)
	f.machine.Start(context.Background())
	login(t, f.machine)
	supersede(t, f)

	guard, err := client.NewGuard(f.machine, client.WithAuthRouteMatcher(func(route string) bool {
		return route == "/account/login"
	}))
	require.NoError(t, err)

	guard.OnRouteChange(context.Background(), "/account/login")
	require.Equal(t, client.PhaseAuthenticated, f.machine.Snapshot().Phase)

	guard.OnRouteChange(context.Background(), "/courses")
	require.Equal(t, client.PhaseInvalid, f.machine.Snapshot().Phase)
}
