package main

import (
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/glabrego/moments-cli/internal/app"
	"github.com/glabrego/moments-cli/internal/config"
	"github.com/glabrego/moments-cli/internal/metrics"
	"github.com/glabrego/moments-cli/internal/remote"
	"github.com/glabrego/moments-cli/internal/storage"
)

// Version is set at build time via ldflags: -ldflags "-X main.Version=1.0.0"
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "moments",
	Short:         "Browse, like and comment on moments and diary entries",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

// stack is everything both front ends share.
type stack struct {
	cfg       config.Config
	repo      *storage.Repository
	collector *metrics.Collector
	runtime   *app.Runtime
}

func (s *stack) Close() error {
	return s.repo.Close()
}

func buildStack(cfg config.Config, logger *log.Logger) (*stack, error) {
	repo, err := storage.NewRepository(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}

	// A nil *remote.Client inside the interface would look configured.
	var client app.RemoteClient
	if cfg.Remote.BaseURL != "" {
		client = remote.NewClient(
			cfg.Remote.BaseURL,
			cfg.Remote.Token,
			&http.Client{Timeout: cfg.Remote.Timeout.Std()},
			cfg.Remote.RateLimit,
		)
	}

	collector := metrics.NewCollector("moments")
	svc := app.NewService(client, repo, app.ServiceOptions{
		Logger:   logger.With("component", "service"),
		Observer: collector,
	})
	rt, err := app.NewRuntime(svc, app.RuntimeOptions{
		ItemsPerPage:     cfg.Feed.ItemsPerPage,
		MaxVisiblePages:  cfg.Feed.MaxVisiblePages,
		Sort:             cfg.SortKey(),
		PersistTimeout:   cfg.Mutation.PersistTimeout.Std(),
		Logger:           logger,
		MutationObserver: collector.ObserveMutation,
	})
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("runtime init: %w", err)
	}

	logger.Info("stack ready",
		"db", cfg.Database.Path,
		"remote", svc.HasRemote(),
		"items_per_page", cfg.Feed.ItemsPerPage,
		"sort", cfg.SortKey(),
	)
	return &stack{cfg: cfg, repo: repo, collector: collector, runtime: rt}, nil
}
