package server

import (
	"context"
	"fmt"
	"log/slog"

	"corpstore/internal/config"
	"corpstore/internal/observer"
	"corpstore/internal/storage"
	"corpstore/internal/storage/jsonfile"
	"corpstore/internal/storage/sqlite"
	"corpstore/internal/tablesvc"
)

// OpenBackend opens the backend selected by cfg.Mode.
func OpenBackend(ctx context.Context, cfg config.Storage) (storage.Backend, error) {
	switch cfg.Mode {
	case config.ModeMemory:
		return storage.NewMemoryBackend(), nil
	case config.ModeFile:
		return jsonfile.Open(cfg.DataDir)
	case config.ModeSQLite:
		return sqlite.Open(cfg.SQLitePath)
	case config.ModeRemote:
		dialCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
		return tablesvc.Dial(dialCtx, cfg.RemoteAddr)
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.Mode)
	}
}

// Run binds the listen address, opens storage and serves until ctx is
// cancelled. The bind happens first so a taken port fails before any
// storage is touched.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	lis, err := Listen(cfg.Addr())
	if err != nil {
		return err
	}

	backend, err := OpenBackend(ctx, cfg.Storage)
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("open %s storage: %w", cfg.Storage.Mode, err)
	}
	store := storage.NewStore(backend)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close storage", "error", err)
		}
	}()

	registry := observer.NewRegistry(observer.Options{
		QueueSize:    cfg.Subscribers.QueueSize,
		WriteTimeout: cfg.Subscribers.WriteTimeout,
		Logger:       logger,
	})
	defer registry.Close()

	srv := New(store, registry, Options{MaxFrameSize: cfg.MaxFrameSize, Logger: logger})
	logger.Info("server listening", "addr", lis.Addr().String(), "backend", cfg.Storage.Mode)
	return srv.Serve(ctx, lis)
}
