package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JonMunkholm/datalab/internal/config"
	"github.com/JonMunkholm/datalab/internal/core"
	"github.com/JonMunkholm/datalab/internal/logging"
	"github.com/JonMunkholm/datalab/internal/product"
	"github.com/JonMunkholm/datalab/internal/store"
	"github.com/JonMunkholm/datalab/internal/web"
	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real environment variables win over it
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx := context.Background()
	st, err := store.Open(ctx, store.Options{
		Driver:          cfg.Database.Driver,
		URL:             cfg.Database.URL,
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		return err
	}

	count, err := st.Count(ctx)
	if err != nil {
		return err
	}
	slog.Info("store ready", "driver", cfg.Database.Driver, "products", count)

	var synonyms map[string]string
	if len(cfg.Schema.Synonyms) > 0 {
		synonyms = product.MergeSynonyms(cfg.Schema.Synonyms)
		slog.Info("custom column synonyms", "count", len(cfg.Schema.Synonyms))
	}

	service := core.NewService(st, core.Options{
		UploadDir:     cfg.Upload.Dir,
		ExportDir:     cfg.Export.Dir,
		UploadTimeout: cfg.Upload.Timeout,
		MaxConcurrent: cfg.Upload.MaxConcurrent,
		MaxWait:       cfg.Upload.MaxWaitTime,
		Synonyms:      synonyms,
	})

	server := web.NewServer(service, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting requests first so no new upload takes a slot, then make
	// sure every upload has released its slot before the store closes.
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}

	if active := service.Limiter().ActiveCount(); active > 0 {
		slog.Info("waiting for uploads to complete", "active", active)
		if err := service.Limiter().WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("uploads did not complete in time", "error", err)
		} else {
			slog.Info("all uploads completed")
		}
	}
	return nil
}
