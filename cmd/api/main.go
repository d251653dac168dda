package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nutrimatic/plataforma/internal/auth"
	"github.com/nutrimatic/plataforma/internal/config"
	"github.com/nutrimatic/plataforma/internal/db"
	internalhttp "github.com/nutrimatic/plataforma/internal/http"
	"github.com/nutrimatic/plataforma/internal/nutricionista"
	"github.com/nutrimatic/plataforma/internal/realtime"
	"github.com/nutrimatic/plataforma/internal/repo"
	"github.com/nutrimatic/plataforma/internal/service"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()

	var (
		pool        *pgxpool.Pool
		redisClient *redis.Client
		feed        *realtime.Feed
		authService *service.AuthService
	)

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)

	if cfg.BackendConfigured() {
		pool, err = db.NewPool(ctx, cfg.DBDSN)
		if err != nil {
			return fmt.Errorf("db: %w", err)
		}
		defer pool.Close()

		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis parse: %w", err)
		}
		redisClient = redis.NewClient(redisOpts)
		defer redisClient.Close()

		feed = realtime.NewFeed(pool, log.With().Str("component", "realtime").Logger())
		feed.Start(ctx)
		defer feed.Stop()

		authService = service.NewAuthService(nutricionista.NewRepository(pool), repo.New(pool), redisClient, jwtManager, cfg.JWTRefreshTTL)
	} else {
		log.Warn().Msg("backend não configurado, subindo em modo degradado")
		authService = service.NewAuthService(nil, nil, nil, jwtManager, cfg.JWTRefreshTTL)
	}

	handler, cleanup, err := internalhttp.NewRouter(cfg, pool, redisClient, authService, feed)
	if err != nil {
		return fmt.Errorf("router: %w", err)
	}
	defer cleanup()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
