package client_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/authority"
	"github.com/coursekit/coursekit/client"
	"github.com/coursekit/coursekit/identity"
	"github.com/coursekit/coursekit/registry"
	"github.com/coursekit/coursekit/users"
	fakeuserrepo "github.com/coursekit/coursekit/users/repofake"
)

const (
	testUserEmail    = "jane.doe@example.com"
	testUserPassword = "Password123"
	testGraceWindow  = 1200 * time.Millisecond
)

// fakeClock lets tests move through the grace window without real timers.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Now()}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// recordingPrompt counts blocking prompts per invalidation episode.
type recordingPrompt struct {
	mu      sync.Mutex
	reasons []client.InvalidationReason
}

func (p *recordingPrompt) Show(reason client.InvalidationReason) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reasons = append(p.reasons, reason)
}

func (p *recordingPrompt) shown() []client.InvalidationReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]client.InvalidationReason(nil), p.reasons...)
}

// flakyStore wraps a Store and simulates registry outages.
type flakyStore struct {
	registry.Store
	mu   sync.Mutex
	fail bool
}

func (s *flakyStore) setFailing(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *flakyStore) failing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fail
}

func (s *flakyStore) Put(ctx context.Context, record registry.SessionRecord) error {
	if s.failing() {
		return errors.New("simulated registry outage")
	}
	return s.Store.Put(ctx, record)
}

func (s *flakyStore) Get(ctx context.Context, userID string) (registry.SessionRecord, error) {
	if s.failing() {
		return registry.SessionRecord{}, errors.New("simulated registry outage")
	}
	return s.Store.Get(ctx, userID)
}

func (s *flakyStore) Delete(ctx context.Context, userID string) error {
	if s.failing() {
		return errors.New("simulated registry outage")
	}
	return s.Store.Delete(ctx, userID)
}

// testFixture holds one simulated device plus the shared backend.
type testFixture struct {
	clock    *fakeClock
	store    *flakyStore
	userRepo users.UserRepo
	provider identity.Provider
	auth     *authority.Authority
	manager  *client.SessionManager
	creds    *identity.MemoryCredentialStore
	prompt   *recordingPrompt
	machine  *client.Machine
}

// setupTestFixture creates the shared backend and one device machine.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	clock := newFakeClock()
	store := &flakyStore{Store: registry.NewInMemoryStore()}
	userRepo := fakeuserrepo.NewFakeUserRepo()

	hash, err := users.HashPassword(testUserPassword)
	require.NoError(t, err)
	require.NoError(t, userRepo.Upsert(&users.User{
		Email:        testUserEmail,
		Name:         "Jane Doe",
		PasswordHash: hash,
		Role:         users.RoleStudent,
	}))

	issuer, err := identity.NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	provider, err := identity.NewLocalProvider(userRepo, issuer)
	require.NoError(t, err)

	auth, err := authority.New(store)
	require.NoError(t, err)

	f := &testFixture{
		clock:    clock,
		store:    store,
		userRepo: userRepo,
		provider: provider,
		auth:     auth,
	}
	f.manager, f.creds, f.prompt, f.machine = newDevice(t, f)
	return f
}

// newDevice creates an independent device (its own credential store, prompt
// and machine) sharing the fixture's backend.
func newDevice(t *testing.T, f *testFixture) (*client.SessionManager, *identity.MemoryCredentialStore, *recordingPrompt, *client.Machine) {
	t.Helper()

	manager, err := client.NewSessionManager(f.store, client.WithManagerNowTime(f.clock.Now))
	require.NoError(t, err)

	creds := identity.NewMemoryCredentialStore()
	prompt := &recordingPrompt{}

	machine, err := client.NewMachine(f.provider, creds, f.auth, manager,
		client.WithMachineNowTime(f.clock.Now),
		client.WithGraceWindow(testGraceWindow),
		client.WithPrompt(prompt),
	)
	require.NoError(t, err)
	return manager, creds, prompt, machine
}

func login(t *testing.T, machine *client.Machine) {
	t.Helper()
	err := machine.Login(context.Background(), identity.Credentials{
		Email:    testUserEmail,
		Password: testUserPassword,
	})
	require.NoError(t, err)
}
