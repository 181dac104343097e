package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"gighop/internal/adapters/blob"
	server "gighop/internal/adapters/http_server"
	"gighop/internal/adapters/identity"
	"gighop/internal/adapters/observability"
	redisad "gighop/internal/adapters/redis"
	"gighop/internal/app"
	"gighop/internal/domain"
	"gighop/internal/shared"
	"gighop/internal/storage/memory"
	mysqlrepo "gighop/internal/storage/mysql"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := shared.Load()
	// set global logger (console in dev, JSON otherwise)
	log.Logger = observability.NewLogger(cfg.AppEnv)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	reg := observability.InitRegistry()
	observability.Serve(cfg.MetricsAddr, reg)

	store := openStore(ctx, cfg)

	// cache is optional; the services fall back to a no-op cache on nil
	var cache domain.Cache
	if cfg.RedisAddr != "" {
		rc := redisad.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
		if err := rc.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable, continuing; cache calls will miss")
		}
		defer rc.Close()
		cache = rc
	}

	auth, err := newAuthenticator(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("authenticator setup failed")
	}

	media, err := blob.NewDisk(cfg.MediaDir, cfg.MediaBaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("media store setup failed")
	}

	ratings := app.NewRatingService(store, cache)
	h := &server.Handlers{
		Q:               app.NewQueryService(store, cache, cfg.CacheTTL),
		Objects:         app.NewObjectService(store, ratings, media, cache),
		Users:           app.NewUserService(store, media, cache),
		LeaderboardSize: cfg.LeaderboardSize,
	}

	// http
	srv := server.New()
	srv.Mount("/metrics", observability.MetricsHandler(reg))
	srv.MountStatic("/media", media.Handler())
	srv.MountHandlers(h, auth)

	httpSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Mux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Str("auth", cfg.AuthMode).Msg("API listening")
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("http server failed")
	}
	log.Info().Msg("API stopped")
}

func openStore(ctx context.Context, cfg shared.Config) domain.TxStore {
	if cfg.StoreDriver == "memory" {
		log.Warn().Msg("using in-memory store; data is lost on exit")
		return memory.New()
	}
	db, err := mysqlrepo.Open(ctx, cfg.MySQLDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("mysql connection failed")
	}
	log.Info().Msg("database connection ok")
	return mysqlrepo.New(db)
}

func newAuthenticator(cfg shared.Config) (domain.Authenticator, error) {
	if cfg.AuthMode == "remote" {
		return identity.NewRemote(cfg.IdentityBase, cfg.IdentityKey, cfg.IdentityRPS)
	}
	return identity.NewJWT(cfg.JWTSecret, cfg.JWTIssuer)
}
