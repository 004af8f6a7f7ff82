package client

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// AuthRouteMatcher reports whether a route belongs to the auth surface
// (login/signup), where validation is pointless and risks interrupting an
// in-progress login.
type AuthRouteMatcher func(route string) bool

// DefaultAuthRoutes matches the marketplace's login and signup surfaces.
func DefaultAuthRoutes(route string) bool {
	return strings.HasPrefix(route, "/login") || strings.HasPrefix(route, "/signup")
}

// Guard decides when the machine should revalidate its held token. It owns no
// state beyond trigger bookkeeping: three triggers - route change, visibility
// regained, periodic tick - all feed Machine.RequestValidation, which handles
// the in-flight deduplication itself.
type Guard struct {
	machine     *Machine
	isAuthRoute AuthRouteMatcher
	interval    time.Duration

	mu        sync.Mutex
	lastRoute string
}

// GuardOption modifies a Guard instance.
type GuardOption func(*Guard)

// WithAuthRouteMatcher overrides the auth-surface exclusion.
func WithAuthRouteMatcher(matcher AuthRouteMatcher) GuardOption {
	return func(g *Guard) {
		g.isAuthRoute = matcher
	}
}

// WithPollInterval sets the cadence of the periodic trigger.
func WithPollInterval(interval time.Duration) GuardOption {
	return func(g *Guard) {
		g.interval = interval
	}
}

// NewGuard creates a guard for the given machine.
func NewGuard(machine *Machine, options ...GuardOption) (*Guard, error) {
	if machine == nil {
		return nil, errors.New("[NewGuard] machine is required")
	}

	g := &Guard{
		machine:     machine,
		isAuthRoute: DefaultAuthRoutes,
		interval:    30 * time.Second,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// OnRouteChange fires on every client-side navigation.
func (g *Guard) OnRouteChange(ctx context.Context, route string) {
	g.mu.Lock()
	g.lastRoute = route
	g.mu.Unlock()

	if g.isAuthRoute(route) {
		return
	}
	g.machine.RequestValidation(ctx)
}

// OnVisibilityRegained fires when the tab returns to the foreground, covering
// the "left the tab open, another device logged in, came back" case.
func (g *Guard) OnVisibilityRegained(ctx context.Context) {
	g.mu.Lock()
	route := g.lastRoute
	g.mu.Unlock()

	if g.isAuthRoute(route) {
		return
	}
	g.machine.RequestValidation(ctx)
}

// Run drives the periodic trigger until the context is cancelled.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.mu.Lock()
			route := g.lastRoute
			g.mu.Unlock()
			if g.isAuthRoute(route) {
				continue
			}
			g.machine.RequestValidation(ctx)
		}
	}
}
