package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

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

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running server")
	}
	log.Info().Msg("Server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("Recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	_ = godotenv.Load() // Missing .env is fine

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	if cfg.IsDev() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	displayAppname(cfg.AppName)

	ctx := context.Background()

	store, closeStore, err := newRecordStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	userRepo := fakeuserrepo.NewFakeUserRepo()
	courseRepo := courses.NewInMemoryRepo()

	provider, err := newIdentityProvider(ctx, cfg, userRepo)
	if err != nil {
		return err
	}

	auth, err := authority.New(store)
	if err != nil {
		return err
	}

	sessions, err := client.NewSessionManager(store,
		client.WithManagerCallTimeout(cfg.Session.CallTimeout))
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, provider, auth, sessions, server.Repos{
		Users:   userRepo,
		Courses: courseRepo,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{Addr: cfg.Addr(), Handler: srv}
	go listenAndServe(httpServer)
	waitForStopSignal()
	return shutdown(httpServer)
}

// newRecordStore selects the session registry backend.
func newRecordStore(ctx context.Context, cfg config.Config) (registry.Store, func(), error) {
	switch cfg.Registry.Driver {
	case "redis":
		store, err := registry.NewRedisStore(ctx, cfg.Registry.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		store, err := registry.NewPostgresStore(ctx, cfg.Registry.PostgresURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case "memory":
		return registry.NewInMemoryStore(), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown registry driver %q", cfg.Registry.Driver)
}

// newIdentityProvider federates to OIDC when an issuer is configured,
// otherwise authenticates against the local user repo.
func newIdentityProvider(ctx context.Context, cfg config.Config, userRepo users.UserRepo) (identity.Provider, error) {
	if cfg.Identity.OIDCIssuerURL != "" {
		return identity.NewOIDCProvider(ctx, identity.OIDCSettings{
			IssuerURL:    cfg.Identity.OIDCIssuerURL,
			ClientID:     cfg.Identity.OIDCClientID,
			ClientSecret: cfg.Identity.OIDCClientSecret,
			RedirectURL:  cfg.Identity.OIDCRedirectURL,
		}, userRepo)
	}

	issuer, err := identity.NewTokenIssuer(cfg.Identity.JWTSecret, cfg.Identity.TokenTTL)
	if err != nil {
		return nil, err
	}
	return identity.NewLocalProvider(userRepo, issuer)
}

func listenAndServe(httpServer *http.Server) {
	log.Info().Str("addr", httpServer.Addr).Msg("Server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
