package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/glabrego/moments-cli/internal/api"
	"github.com/glabrego/moments-cli/internal/config"
	"github.com/glabrego/moments-cli/internal/logging"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the feeds as a JSON API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	logger := logging.New(os.Stderr, cfg.Log.Level)

	st, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close error", "err", err)
		}
	}()

	// Warm the feeds; a failed load still serves whatever the cache holds.
	loadCtx, loadCancel := context.WithTimeout(ctx, 20*time.Second)
	if err := st.runtime.Reload(loadCtx); err != nil {
		logger.Warn("initial load failed", "err", err)
	}
	loadCancel()

	handler := api.NewHandler(st.runtime, api.Options{
		Version:         Version,
		ItemsPerPage:    cfg.Feed.ItemsPerPage,
		MaxVisiblePages: cfg.Feed.MaxVisiblePages,
		Sort:            cfg.SortKey(),
		Logger:          logger.With("component", "api"),
		Metrics:         st.collector,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "err", err)
	}
	logger.Info("shutdown complete")
	return nil
}
