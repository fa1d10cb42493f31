package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/weekly-planner/internal/action"
	"github.com/nhle/weekly-planner/internal/app"
	"github.com/nhle/weekly-planner/internal/draft"
)

// runTUI opens the interactive planner. Logs go to a file next to the
// config so they do not corrupt the terminal.
func runTUI(ctx context.Context, a *App) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logPath := filepath.Join(filepath.Dir(a.ConfigPath), "planner.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	defer logFile.Close()

	if err := a.load(logFile); err != nil {
		return err
	}
	defer a.Close()

	s, err := a.openStore()
	if err != nil {
		return err
	}

	drafts := draft.NewManager(s,
		draft.WithDebounce(a.cfg.Draft.Debounce()),
		draft.WithLogger(a.logger),
	)
	defer drafts.Close()
	if err := drafts.Load(ctx); err != nil {
		return err
	}

	engine, err := a.newEngine(ctx, s)
	switch {
	case errors.Is(err, errSyncDisabled):
		engine = nil
	case err != nil:
		return err
	}

	changes := app.NewChanges()
	opts := []action.Option{
		action.WithLogger(a.logger),
		action.OnChange(changes.Notify),
	}
	if engine != nil {
		opts = append(opts, action.WithSyncer(engine))
	}
	d := action.NewDispatcher(s, drafts, opts...)
	defer d.Close()

	if engine != nil {
		engine.Start()
		defer engine.Stop()
	}

	p := tea.NewProgram(app.New(d, changes, engine), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running planner: %w", err)
	}
	return nil
}
