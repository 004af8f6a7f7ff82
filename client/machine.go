// Package client implements the device-side half of single-active-session
// enforcement: the session manager that registers a login with the registry,
// the auth state machine each device runs, and the guard that decides when
// the machine should revalidate its held token.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/coursekit/coursekit/authority"
	"github.com/coursekit/coursekit/identity"
	"github.com/coursekit/coursekit/users"
)

// Phase is the reactive authentication state consumed by the UI.
type Phase string

const (
	PhaseLoading       Phase = "loading"
	PhaseAuthenticated Phase = "authenticated"
	PhaseInvalid       Phase = "invalid"
	PhaseAnonymous     Phase = "anonymous"
)

// InvalidationReason explains why a session stopped being valid.
type InvalidationReason string

const (
	ReasonNone              InvalidationReason = "none"
	ReasonReplacedElsewhere InvalidationReason = "replaced_elsewhere"
	ReasonOther             InvalidationReason = "other"
)

// pendingOp is the machine's internal concurrency guard. Holding it as
// machine state rather than package-level flags keeps the transition
// functions the single place that reads and writes it.
type pendingOp int

const (
	pendingNone pendingOp = iota
	pendingRegistering
	pendingValidating
)

// Snapshot is the reactive value the machine exposes upward. Consumers read
// Phase and User and never touch the registry directly.
type Snapshot struct {
	Phase  Phase
	User   *users.User
	Reason InvalidationReason
}

// Machine holds one device's authentication state and owns every transition,
// including the post-login grace window that suppresses false "replaced"
// detections before the registry write becomes visible.
type Machine struct {
	provider  identity.Provider
	creds     identity.CredentialStore
	authority *authority.Authority
	manager   *SessionManager
	prompt    Prompt

	graceWindow time.Duration
	callTimeout time.Duration
	nowTime     func() time.Time

	mu                      sync.Mutex
	phase                   Phase
	user                    *users.User
	heldToken               string
	reason                  InvalidationReason
	suppressValidationUntil time.Time
	pending                 pendingOp
	subscribers             []func(Snapshot)
}

// MachineOption modifies a Machine instance.
type MachineOption func(*Machine)

// WithMachineNowTime sets the now time function (primarily for testing)
func WithMachineNowTime(nowFunc func() time.Time) MachineOption {
	return func(m *Machine) {
		m.nowTime = nowFunc
	}
}

// WithGraceWindow sets how long after a login validation stays suppressed.
func WithGraceWindow(d time.Duration) MachineOption {
	return func(m *Machine) {
		m.graceWindow = d
	}
}

// WithCallTimeout bounds each identity and registry network call.
func WithCallTimeout(d time.Duration) MachineOption {
	return func(m *Machine) {
		m.callTimeout = d
	}
}

// WithPrompt sets the blocking presentation surface.
func WithPrompt(p Prompt) MachineOption {
	return func(m *Machine) {
		m.prompt = p
	}
}

// NewMachine initializes a machine in the loading phase.
func NewMachine(
	provider identity.Provider,
	creds identity.CredentialStore,
	auth *authority.Authority,
	manager *SessionManager,
	options ...MachineOption,
) (*Machine, error) {
	if provider == nil {
		return nil, errors.New("[NewMachine] identity provider is required")
	}
	if creds == nil {
		return nil, errors.New("[NewMachine] credential store is required")
	}
	if auth == nil {
		return nil, errors.New("[NewMachine] authority is required")
	}
	if manager == nil {
		return nil, errors.New("[NewMachine] session manager is required")
	}

	m := &Machine{
		provider:    provider,
		creds:       creds,
		authority:   auth,
		manager:     manager,
		prompt:      NopPrompt{},
		graceWindow: 1200 * time.Millisecond,
		callTimeout: 5 * time.Second,
		nowTime:     time.Now,
		phase:       PhaseLoading,
		reason:      ReasonNone,
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// Subscribe registers a callback invoked after every phase transition.
// Callbacks run outside the machine's lock, in transition order.
func (m *Machine) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, fn)
}

// Snapshot returns the current reactive value.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{Phase: m.phase, User: m.user, Reason: m.reason}
}

// Start resolves any locally stored credential and leaves the loading phase.
// A replaced session surfaces the blocking prompt; a missing record is an
// ordinary logout; an inconclusive lookup fails open to authenticated so a
// connectivity blip at startup does not bounce the user offline.
func (m *Machine) Start(ctx context.Context) {
	cred := m.creds.Current()
	if cred == nil || cred.Token == "" {
		m.transition(func() { m.phase = PhaseAnonymous })
		return
	}

	vctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	result := m.authority.Validate(vctx, cred.User.ID, cred.Token)
	cancel()

	switch result.Reason {
	case authority.ReasonSessionReplaced:
		m.transition(func() {
			m.phase = PhaseInvalid
			m.reason = ReasonReplacedElsewhere
			m.user = cred.User
			m.heldToken = cred.Token
		})
		m.prompt.Show(ReasonReplacedElsewhere)
		m.clearCredential()
	case authority.ReasonNotFound:
		m.clearCredential()
		m.transition(func() { m.phase = PhaseAnonymous })
	case authority.ReasonLookupError:
		log.Err(result.Err).Msg("Startup validation inconclusive, staying signed in")
		fallthrough
	default:
		m.transition(func() {
			m.phase = PhaseAuthenticated
			m.user = cred.User
			m.heldToken = cred.Token
		})
	}
}

// Login authenticates with the identity provider, registers the fresh token
// with the registry (superseding every other device) and enters the grace
// window before becoming authenticated. Any validation triggered while the
// registration is in flight is skipped outright, not delayed.
func (m *Machine) Login(ctx context.Context, credentials identity.Credentials) error {
	m.mu.Lock()
	if m.pending != pendingNone {
		m.mu.Unlock()
		return errors.New("[Machine.Login] another operation is in flight")
	}
	m.pending = pendingRegistering
	m.mu.Unlock()

	ictx, cancel := context.WithTimeout(ctx, m.callTimeout)
	cred, err := m.provider.SignIn(ictx, credentials)
	cancel()
	if err != nil {
		m.mu.Lock()
		m.pending = pendingNone
		m.mu.Unlock()
		return errors.Wrap(err, "[Machine.Login] sign in")
	}

	if err := m.creds.Save(cred); err != nil {
		log.Err(err).Msg("Failed to persist credential locally")
	}

	// Replace whatever token any other device registered. Non-fatal on
	// failure: the login proceeds locally.
	m.manager.Register(ctx, cred.User.ID, cred.Token)

	m.transition(func() {
		m.phase = PhaseAuthenticated
		m.user = cred.User
		m.heldToken = cred.Token
		m.reason = ReasonNone
		m.suppressValidationUntil = m.nowTime().Add(m.graceWindow)
		m.pending = pendingNone
	})
	return nil
}

// RequestValidation is the single entry point all guard triggers feed. It
// performs the in-flight deduplication, honors the grace window, and applies
// the authority's verdict. Only an authenticated machine ever validates, so
// repeated failures while already invalid cannot re-queue the prompt.
func (m *Machine) RequestValidation(ctx context.Context) {
	m.mu.Lock()
	if m.phase != PhaseAuthenticated ||
		m.pending != pendingNone ||
		m.nowTime().Before(m.suppressValidationUntil) {
		m.mu.Unlock()
		return
	}
	m.pending = pendingValidating
	userID, heldToken := m.user.ID, m.heldToken
	m.mu.Unlock()

	vctx, cancel := context.WithTimeout(ctx, m.callTimeout)
	result := m.authority.Validate(vctx, userID, heldToken)
	cancel()

	switch result.Reason {
	case authority.ReasonSessionReplaced:
		m.transition(func() {
			m.phase = PhaseInvalid
			m.reason = ReasonReplacedElsewhere
			m.pending = pendingNone
		})
		m.prompt.Show(ReasonReplacedElsewhere)
		m.clearCredential()
	case authority.ReasonNotFound:
		// Ordinary logout elsewhere, no message
		m.clearCredential()
		m.transition(func() {
			m.phase = PhaseAnonymous
			m.user = nil
			m.heldToken = ""
			m.pending = pendingNone
		})
	case authority.ReasonLookupError:
		// Inconclusive, fail open
		log.Err(result.Err).Msg("Validation inconclusive, keeping session")
		fallthrough
	default:
		m.mu.Lock()
		m.pending = pendingNone
		m.mu.Unlock()
	}
}

// Acknowledge is the single affordance of the blocking prompt. It clears the
// local credential, resets the machine to anonymous and ends the
// invalidation episode; the UI then redirects to the login surface.
func (m *Machine) Acknowledge() {
	m.mu.Lock()
	if m.phase != PhaseInvalid {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.clearCredential()
	m.transition(func() {
		m.phase = PhaseAnonymous
		m.user = nil
		m.heldToken = ""
		m.reason = ReasonNone
	})
}

// Logout signs out with the provider, deletes the registry record and clears
// local state. Every remote step is best effort; the device always ends up
// anonymous.
func (m *Machine) Logout(ctx context.Context) {
	m.mu.Lock()
	user, token := m.user, m.heldToken
	m.mu.Unlock()

	if token != "" {
		sctx, cancel := context.WithTimeout(ctx, m.callTimeout)
		if err := m.provider.SignOut(sctx, token); err != nil {
			log.Err(err).Msg("Provider sign-out failed, logging out locally")
		}
		cancel()
	}
	if user != nil {
		m.manager.Invalidate(ctx, user.ID)
	}

	m.clearCredential()
	m.transition(func() {
		m.phase = PhaseAnonymous
		m.user = nil
		m.heldToken = ""
		m.reason = ReasonNone
	})
}

// clearCredential wipes the locally stored credential. Best effort.
func (m *Machine) clearCredential() {
	if err := m.creds.Clear(); err != nil {
		log.Err(err).Msg("Failed to clear local credential")
	}
}

// transition applies a mutation under the lock and notifies subscribers with
// the resulting snapshot outside it.
func (m *Machine) transition(mutate func()) {
	m.mu.Lock()
	mutate()
	snapshot := Snapshot{Phase: m.phase, User: m.user, Reason: m.reason}
	subscribers := make([]func(Snapshot), len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.Unlock()

	for _, fn := range subscribers {
		fn(snapshot)
	}
}
