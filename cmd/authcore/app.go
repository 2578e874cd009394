package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/nkiryanov/authcore/internal/clock"
	"github.com/nkiryanov/authcore/internal/db"
	"github.com/nkiryanov/authcore/internal/handlers"
	"github.com/nkiryanov/authcore/internal/logger"
	"github.com/nkiryanov/authcore/internal/repository/postgres"
	"github.com/nkiryanov/authcore/internal/repository/redisstore"
	"github.com/nkiryanov/authcore/internal/service/credential"
	"github.com/nkiryanov/authcore/internal/service/oauth"
	"github.com/nkiryanov/authcore/internal/service/session"
	"github.com/nkiryanov/authcore/internal/service/sweeper"
	"github.com/nkiryanov/authcore/internal/service/tokensigner"
)

const shutdownTimeout = 5 * time.Second

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	sweeper *sweeper.Sweeper
	pool    *pgxpool.Pool
	redis   *redis.Client
	logger  logger.Logger
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	// Initialize logger
	l, err := logger.New(c.Environment, c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("error while initializing logger: %w", err)
	}

	// Connect to the database and run migrations
	pool, err := db.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	rdb, err := redisstore.Connect(ctx, c.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while connecting to redis. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)
	states := redisstore.NewOAuthStateStore(rdb, "")

	// Initialize services
	signer, err := tokensigner.New(tokensigner.Config{})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("error while creating token signer. Err: %w", err), closeAll(pool, rdb))
	}

	sink := session.NewLogSink(l)
	coordinator, err := session.New(session.Config{Sink: sink, Logger: l}, storage, signer)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("error while creating session coordinator. Err: %w", err), closeAll(pool, rdb))
	}

	resolver := oauth.NewResolver(storage, credential.DefaultHasher, clock.Real{}, sink)
	oauthService := oauth.NewService(
		oauth.Config{StateTTL: c.OAuthStateTTL, Logger: l},
		storage, states, &oauth.OAuth2Client{}, resolver, coordinator,
	)

	sw := sweeper.New(sweeper.Config{
		Interval:  c.SweepInterval,
		Retention: c.RefreshRetention,
		Logger:    l,
	}, storage.Refresh())

	mux := handlers.NewRouter(coordinator, oauthService, c.AdminToken, l)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		sweeper:    sw,
		pool:       pool,
		redis:      rdb,
		logger:     l,
	}, nil
}

func closeAll(pool *pgxpool.Pool, rdb *redis.Client) error {
	pool.Close()
	return rdb.Close()
}

// Run starts http server and sweeper and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.ListenAddr,
		Handler:           s.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	sweeperStopped := s.sweeper.Run(srvCtx)

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); errors.Is(err, context.DeadlineExceeded) {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "address", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed
	<-sweeperStopped

	if closeErr := s.Close(); closeErr != nil {
		s.logger.Warn("Failed to close redis client", "error", closeErr)
	}

	return err
}

// Close releases db pool and redis client. Run calls it on exit.
func (s *ServerApp) Close() error {
	return closeAll(s.pool, s.redis)
}
