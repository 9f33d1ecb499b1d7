package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"shopgate/internal/authstate"
	"shopgate/internal/authz"
	adminhandler "shopgate/internal/authz/handler"
	adminstore "shopgate/internal/authz/store/admin"
	flagstore "shopgate/internal/authz/store/flag"
	"shopgate/internal/guard"
	"shopgate/internal/identity/events"
	identityhandler "shopgate/internal/identity/handler"
	identityservice "shopgate/internal/identity/service"
	resettokenstore "shopgate/internal/identity/store/resettoken"
	sessionstore "shopgate/internal/identity/store/session"
	userstore "shopgate/internal/identity/store/user"
	"shopgate/internal/identity/token"
	"shopgate/internal/platform/config"
	"shopgate/internal/platform/httpserver"
	"shopgate/internal/platform/logger"
	"shopgate/internal/platform/metrics"
	"shopgate/internal/platform/postgres"
	redisplatform "shopgate/internal/platform/redis"
	"shopgate/internal/recent"
	recenthandler "shopgate/internal/recent/handler"
	"shopgate/internal/settings"
	settingshandler "shopgate/internal/settings/handler"
	settingsstore "shopgate/internal/settings/store"
	httptransport "shopgate/internal/transport/http"
	"shopgate/pkg/platform/audit"
	auditkafka "shopgate/pkg/platform/audit/kafka"
	auditmemory "shopgate/pkg/platform/audit/store/memory"
	auditpostgres "shopgate/pkg/platform/audit/store/postgres"
)

// main wires dependencies and runs the server. Every backing service is
// optional: without Postgres or Redis the gateway runs on in-memory stores,
// which is how tests and local development work.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}

	rdb, err := redisplatform.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	// Identity stores.
	var users identityservice.UserStore = userstore.New()
	if pool != nil {
		users = userstore.NewPostgres(pool)
	}
	var sessions identityservice.SessionStore = sessionstore.New()
	if rdb != nil {
		sessions = sessionstore.NewRedis(rdb.Client)
	}
	resets := resettokenstore.New()

	// Audit pipeline: memory by default, Postgres when available, Kafka
	// when brokers are configured.
	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if cfg.PostgresDSN != "" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Error("audit store unavailable", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		auditStore = auditpostgres.New(db)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaStore, err := auditkafka.New(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka audit pipeline unavailable", "error", err)
			os.Exit(1)
		}
		defer kafkaStore.Close()
		auditStore = kafkaStore
		log.Info("audit events publishing to kafka", "topic", cfg.Kafka.Topic)
	}
	auditor := audit.NewPublisher(auditStore, audit.WithAsyncBuffer(256), audit.WithLogger(log))
	defer auditor.Close()

	// Identity provider.
	broadcaster := events.NewBroadcaster(log)
	tokens := token.NewManager(cfg.JWTSigningKey)
	identity := identityservice.New(users, sessions, resets, tokens, broadcaster, auditor, m, log,
		identityservice.Config{
			AccessTokenTTL:  cfg.AccessTokenTTL,
			RefreshTokenTTL: cfg.RefreshTokenTTL,
		})

	// Admin authority: authoritative record plus the persisted flag layer.
	var admins authz.AdminStore = adminstore.New()
	if pool != nil {
		admins = adminstore.NewPostgres(pool)
	}
	var flags authz.FlagStore = flagstore.New()
	if rdb != nil {
		flags = flagstore.NewRedis(rdb.Client, 0)
	}
	verifier := authz.NewVerifier(admins, cfg.AdminVerifyTimeout, m, log)

	// Settings mirror.
	var settingsBackend settings.Store = settingsstore.NewInMemory()
	if pool != nil {
		pgSettings := settingsstore.NewPostgres(pool)
		if err := pgSettings.EnsureRow(ctx); err != nil {
			log.Error("settings row bootstrap failed", "error", err)
			os.Exit(1)
		}
		settingsBackend = pgSettings
	}
	var notifier *settings.Notifier
	if rdb != nil {
		notifier = settings.NewNotifier(rdb.Client, cfg.SettingsChannel, log)
	}
	var mirror *settings.Mirror
	if notifier != nil {
		mirror = settings.NewMirror(settingsBackend, notifier, auditor, m, log)
	} else {
		mirror = settings.NewMirror(settingsBackend, nil, auditor, m, log)
	}
	if err := mirror.Init(ctx); err != nil {
		log.Error("settings mirror init failed", "error", err)
		os.Exit(1)
	}

	// Recently-viewed cache, also registered as a sign-out purge hook.
	var recents recent.Store = recent.NewInMemory(recent.DefaultLimit)
	if rdb != nil {
		recents = recent.NewRedis(rdb.Client, recent.DefaultLimit, 0)
	}

	// One authorization holder per browser-session scope.
	factory := func(scope string) *authstate.Holder {
		return authstate.NewHolder(scope, identity, verifier, flags, m, log, recents)
	}
	registry := authstate.NewRegistry(factory, identity, log)
	defer registry.Close()

	routeGuard := guard.New(registry, cfg.SignInPath, admins, auditor, m, log)

	checks := map[string]httptransport.HealthChecker{}
	if rdb != nil {
		checks["redis"] = rdb
	}
	if pool != nil {
		checks["postgres"] = poolHealth{pool: pool}
	}

	router := httptransport.NewRouter(log, checks,
		identityhandler.New(identity, registry, tokens, log),
		settingshandler.New(mirror, routeGuard, log),
		adminhandler.New(admins, routeGuard, auditor, log),
		recenthandler.New(recents, log),
	)
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("shopgate listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if notifier != nil {
		group.Go(func() error {
			notifier.Listen(groupCtx, mirror)
			return nil
		})
	}
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

type poolHealth struct {
	pool interface {
		Ping(ctx context.Context) error
	}
}

func (p poolHealth) Health(ctx context.Context) error {
	return p.pool.Ping(ctx)
}
