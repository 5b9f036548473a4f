package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/glabrego/moments-cli/internal/config"
	"github.com/glabrego/moments-cli/internal/logging"
	"github.com/glabrego/moments-cli/internal/tui"
)

var tuiRelativeTime bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Open the terminal browser (default)",
	Args:  cobra.NoArgs,
	RunE:  runTUI,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, tuiCmd} {
		cmd.Flags().BoolVar(&tuiRelativeTime, "relative", false, "show relative dates")
	}
}

func runTUI(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// The TUI owns the terminal, so logs go to a file.
	logger, closer, err := logging.OpenFile(cfg.Log.File, cfg.Log.Level)
	if err != nil {
		return err
	}
	defer closer.Close()

	st, err := buildStack(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	model, err := tui.NewModel(st.runtime, tui.Options{
		Logger:       logger.With("component", "tui"),
		RelativeTime: tuiRelativeTime,
	})
	if err != nil {
		return fmt.Errorf("tui init: %w", err)
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}
