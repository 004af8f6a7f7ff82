package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/coursekit/coursekit/authority"
	"github.com/coursekit/coursekit/client"
	"github.com/coursekit/coursekit/courses"
	"github.com/coursekit/coursekit/identity"
	"github.com/coursekit/coursekit/internal/config"
	"github.com/coursekit/coursekit/registry"
	"github.com/coursekit/coursekit/server"
	"github.com/coursekit/coursekit/users"
	fakeuserrepo "github.com/coursekit/coursekit/users/repofake"
)

const (
	testUserEmail    = "jane.doe@example.com"
	testUserPassword = "Password123"
	cookieName       = "coursekit_session"
)

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

func (s *flakyStore) Get(ctx context.Context, userID string) (registry.SessionRecord, error) {
	s.mu.Lock()
	fail := s.fail
	s.mu.Unlock()
	if fail {
		return registry.SessionRecord{}, errors.New("simulated registry outage")
	}
	return s.Store.Get(ctx, userID)
}

type testFixture struct {
	srv      *server.Server
	store    *flakyStore
	provider identity.Provider
	sessions *client.SessionManager
	courseID string
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	cfg := config.Config{
		AppName: "CourseKit",
		Env:     "TEST",
		Port:    "8080",
		Session: config.SessionConfig{
			GraceWindow:  1200 * time.Millisecond,
			CallTimeout:  5 * time.Second,
			PollInterval: 30 * time.Second,
			CookieName:   cookieName,
		},
	}

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
	sessions, err := client.NewSessionManager(store)
	require.NoError(t, err)

	courseRepo := courses.NewInMemoryRepo()
	course := &courses.Course{
		Title:       "Distributed Systems 101",
		Description: "Consensus for the impatient.",
		PriceCents:  4900,
		Published:   true,
	}
	require.NoError(t, courseRepo.UpsertCourse(course))

	srv, err := server.New(cfg, provider, auth, sessions, server.Repos{
		Users:   userRepo,
		Courses: courseRepo,
	})
	require.NoError(t, err)

	return &testFixture{
		srv:      srv,
		store:    store,
		provider: provider,
		sessions: sessions,
		courseID: course.ID,
	}
}

// loginDevice simulates one device's completed login: a provider sign-in
// plus the registry registration, returning the held token.
func (f *testFixture) loginDevice(t *testing.T) string {
	t.Helper()
	cred, err := f.provider.SignIn(context.Background(), identity.Credentials{
		Email:    testUserEmail,
		Password: testUserPassword,
	})
	require.NoError(t, err)
	require.True(t, f.sessions.Register(context.Background(), cred.User.ID, cred.Token))
	return cred.Token
}

func (f *testFixture) get(path, heldToken string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if heldToken != "" {
		req.AddCookie(&http.Cookie{Name: cookieName, Value: heldToken})
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	return rec
}

func TestLoginSetsSessionCookie(t *testing.T) {
	f := setupTestFixture(t)

	form := url.Values{"email": {testUserEmail}, "password": {testUserPassword}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/courses", rec.Header().Get("Location"))

	var sessionCookie, graceCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		switch c.Name {
		case cookieName:
			sessionCookie = c
		case cookieName + "_grace":
			graceCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	require.NotEmpty(t, sessionCookie.Value)
	require.NotNil(t, graceCookie, "login opens a grace window")
}

func TestLoginWithBadCredentials(t *testing.T) {
	f := setupTestFixture(t)

	form := url.Values{"email": {testUserEmail}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Contains(t, rec.Header().Get("Location"), "/login?error=")
}

func TestReplacedSessionRendersBlockingOverlay(t *testing.T) {
	f := setupTestFixture(t)

	tokenA := f.loginDevice(t)
	_ = f.loginDevice(t) // Device B supersedes A

	rec := f.get("/courses", tokenA)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Contains(t, rec.Body.String(), "accessed from another device")
	require.Contains(t, rec.Body.String(), "/session/acknowledge",
		"the acknowledge form is the only affordance")
}

func TestOverlayPersistsUntilAcknowledged(t *testing.T) {
	f := setupTestFixture(t)

	tokenA := f.loginDevice(t)
	_ = f.loginDevice(t)

	// Same episode across navigations
	for _, path := range []string{"/courses", "/my/courses", "/courses"} {
		rec := f.get(path, tokenA)
		require.Equal(t, http.StatusConflict, rec.Code)
	}
}

func TestAuthSurfaceIsNeverBlocked(t *testing.T) {
	f := setupTestFixture(t)

	tokenA := f.loginDevice(t)
	_ = f.loginDevice(t)

	rec := f.get("/login", tokenA)
	require.Equal(t, http.StatusOK, rec.Code, "never block the page the user recovers on")
}

func TestAcknowledgeClearsSessionAndRedirects(t *testing.T) {
	f := setupTestFixture(t)

	tokenA := f.loginDevice(t)
	_ = f.loginDevice(t)

	req := httptest.NewRequest(http.MethodPost, "/session/acknowledge", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: tokenA})
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))

	cleared := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == cookieName && c.Value == "" && c.MaxAge < 0 {
			cleared = true
		}
	}
	require.True(t, cleared, "held-token cookie removed")
}

func TestMissingRecordIsSilentLogout(t *testing.T) {
	f := setupTestFixture(t)

	tokenA := f.loginDevice(t)
	user, err := f.provider.UserFromToken(context.Background(), tokenA)
	require.NoError(t, err)
	f.sessions.Invalidate(context.Background(), user.ID)

	// Public page degrades to anonymous, no overlay
	rec := f.get("/courses", tokenA)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotContains(t, rec.Body.String(), "accessed from another device")

	// Protected page redirects to login, still no overlay
	rec = f.get("/my/courses", tokenA)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestGraceCookieSkipsValidation(t *testing.T) {
	f := setupTestFixture(t)

	tokenA := f.loginDevice(t)
	_ = f.loginDevice(t) // Registry already carries B's token

	req := httptest.NewRequest(http.MethodGet, "/my/courses", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: tokenA})
	req.AddCookie(&http.Cookie{Name: cookieName + "_grace", Value: "1"})
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code,
		"no spurious invalidation while the login's write may still be invisible")
}

func TestRegistryOutageFailsOpen(t *testing.T) {
	f := setupTestFixture(t)

	tokenA := f.loginDevice(t)
	f.store.setFailing(true)

	rec := f.get("/my/courses", tokenA)
	require.Equal(t, http.StatusOK, rec.Code, "connectivity blips never log the user out")
}

func TestHeartbeatPhases(t *testing.T) {
	f := setupTestFixture(t)

	decode := func(rec *httptest.ResponseRecorder) (phase, reason string) {
		var body struct {
			Phase  string `json:"phase"`
			Reason string `json:"reason"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return body.Phase, body.Reason
	}

	// Anonymous
	phase, _ := decode(f.get("/session/heartbeat", ""))
	require.Equal(t, "anonymous", phase)

	// Authenticated
	tokenA := f.loginDevice(t)
	phase, _ = decode(f.get("/session/heartbeat", tokenA))
	require.Equal(t, "authenticated", phase)

	// Replaced elsewhere
	_ = f.loginDevice(t)
	phase, reason := decode(f.get("/session/heartbeat", tokenA))
	require.Equal(t, "invalid", phase)
	require.Equal(t, "replaced_elsewhere", reason)
}

func TestEnrollRequiresLogin(t *testing.T) {
	f := setupTestFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/courses/"+f.courseID+"/enroll", nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, "/login", rec.Header().Get("Location"))
}

func TestEnrollAndListMyCourses(t *testing.T) {
	f := setupTestFixture(t)
	tokenA := f.loginDevice(t)

	req := httptest.NewRequest(http.MethodPost, "/courses/"+f.courseID+"/enroll", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: tokenA})
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)

	rec = f.get("/my/courses", tokenA)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Distributed Systems 101")
}
