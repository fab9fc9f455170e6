package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"collabtext/internal/config"
	"collabtext/internal/jobs"
	"collabtext/internal/persist"
	"collabtext/internal/relay"
	"collabtext/internal/routers"
	"collabtext/internal/session"
	"collabtext/internal/store"
	"collabtext/internal/store/cache"
	"collabtext/internal/store/mongostore"
	"collabtext/internal/store/sqlstore"
)

var (
	listenAndServe = func(srv *http.Server) error { return srv.ListenAndServe() }
	exitFunc       = defaultExit
	exit           = os.Exit
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		exitFunc(err)
	}
}

func defaultExit(err error) {
	log.Printf("collabtext: %v", err)
	exit(1)
}

func run(ctx context.Context) error {
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Info("Configuration loaded",
		zap.String("store", cfg.StoreDriver),
		zap.String("persistMode", cfg.PersistMode),
		zap.Duration("persistDelay", cfg.PersistDelay))

	docs, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	writer := newWriter(cfg, docs, logger)
	rel := relay.New(session.NewHub(), docs, writer, logger, cfg.DefaultDocumentID)

	cleaner := jobs.NewHistoryCleaner(rel, cfg.ClearHistorySchedule, logger)
	if err := cleaner.Start(); err != nil {
		_ = rel.Close(context.Background())
		return err
	}
	defer cleaner.Stop()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           routers.New(logger, rel, cfg.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collabtext listening", zap.String("addr", server.Addr))
		errCh <- listenAndServe(server)
	}()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-ctx.Done():
		logger.Info("collabtext shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	// Shutdown does not track hijacked websockets; the relay closes them
	// before the last flush.
	if err := rel.Close(shutdownCtx); err != nil {
		logger.Error("closing relay failed", zap.Error(err))
	}
	logger.Info("collabtext exited")
	return serveErr
}

func newWriter(cfg *config.Config, docs store.DocumentStore, logger *zap.Logger) persist.Writer {
	hooks := relay.WriterHooks(logger)
	if cfg.PersistMode == config.PersistWriteThrough {
		return persist.NewWriteThrough(docs, hooks)
	}
	return persist.NewDebouncer(docs, cfg.PersistDelay, hooks)
}

// openStore builds the configured DocumentStore, optionally fronted by Redis.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.DocumentStore, func(), error) {
	var (
		docs    store.DocumentStore
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	switch cfg.StoreDriver {
	case config.StoreMongo:
		client, err := mongostore.NewClient(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		repo, err := mongostore.NewDocumentRepo(ctx, client, cfg.DocumentsDBName, cfg.DocumentsCollection)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		docs = repo
	case config.StorePostgres:
		repo, err := sqlstore.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = repo.Close() })
		docs = repo
	case config.StoreSQLite:
		repo, err := sqlstore.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { _ = repo.Close() })
		docs = repo
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	logger.Info("document store ready", zap.String("driver", cfg.StoreDriver))

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, running without snapshot cache",
				zap.String("addr", cfg.RedisAddr), zap.Error(err))
			_ = rdb.Close()
		} else {
			closers = append(closers, func() { _ = rdb.Close() })
			docs = cache.New(docs, rdb, cfg.CacheTTL, logger)
			logger.Info("snapshot cache enabled", zap.String("addr", cfg.RedisAddr))
		}
	}
	return docs, closeAll, nil
}
