package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/nvelasco/campusd/api"
	"github.com/nvelasco/campusd/auth"
	"github.com/nvelasco/campusd/config"
	"github.com/nvelasco/campusd/directory"
	bboltstorage "github.com/nvelasco/campusd/storage/bbolt"
)

var (
	listenAddr string
	dataDir    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the account service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}

		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}

		logger, err := newLogger(cfg.Log)
		if err != nil {
			return err
		}

		store, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, "auth.db"), nil)
		if err != nil {
			return fmt.Errorf("failed to open auth state storage: %w", err)
		}
		defer store.Close()

		dir, err := directory.OpenSQLite(filepath.Join(cfg.DataDir, "directory.db"))
		if err != nil {
			return fmt.Errorf("failed to open student directory: %w", err)
		}
		defer dir.Close()

		svc := auth.NewService(
			dir,
			auth.NewHasher(cfg.Argon2idParams()),
			auth.NewThrottle(store, nil,
				auth.WithMaxAttempts(cfg.Lockout.MaxAttempts),
				auth.WithLockoutDuration(cfg.Lockout.Duration.Std()),
				auth.WithAttemptResetWindow(cfg.Lockout.ResetWindow.Std()),
				auth.WithThrottleLogger(logger)),
			auth.NewSessionManager(store, nil,
				auth.WithAbsoluteTimeout(cfg.Session.AbsoluteTimeout.Std()),
				auth.WithIdleTimeout(cfg.Session.IdleTimeout.Std()),
				auth.WithSessionLogger(logger)),
			nil,
			auth.WithServiceLogger(logger),
		)

		a := api.New(svc, api.WithLogger(logger))

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})

		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		logger.Info("campusd started",
			slog.String("version", Version),
			slog.String("listen", cfg.Listen),
			slog.String("data_dir", cfg.DataDir))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("shutting down", slog.String("signal", sig.String()))
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", cfg.Format)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides config)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides config)")
}
