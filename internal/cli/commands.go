package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/weekly-planner/internal/action"
	"github.com/nhle/weekly-planner/internal/credential"
	"github.com/nhle/weekly-planner/internal/model"
	"github.com/nhle/weekly-planner/internal/store"
)

func newSyncCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one pull-reconcile-push cycle",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.Close()

			s, err := app.openStore()
			if err != nil {
				return err
			}
			engine, err := app.newEngine(contextOf(cmd), s)
			if errors.Is(err, errSyncDisabled) {
				return fmt.Errorf("%w: set sync.backend in %s", err, app.ConfigPath)
			}
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(contextOf(cmd), app.cfg.Sync.Timeout())
			defer cancel()

			res, err := engine.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pulled %d, pushed %d\n", res.Pulled, res.Pushed)
			return nil
		},
	}
}

func newRepairCmd(app *App) *cobra.Command {
	var (
		category string
		week     string
		renumber bool
	)

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Repair the ordering of one week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.Close()

			q, err := weekQuery(week, model.Category(category))
			if err != nil {
				return err
			}
			s, err := app.openStore()
			if err != nil {
				return err
			}
			ctx := contextOf(cmd)

			// QueryRange heals corrupt orderings on its own.
			items, err := s.QueryRange(ctx, q)
			if err != nil {
				return err
			}
			n := 0
			if renumber {
				if n, err = s.RenumberOrdering(ctx, items, q.Category); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d items in %s week of %s, %d renumbered\n",
				len(items), q.Category, q.Start.Format("2006-01-02"), n)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", string(model.CategoryWeekly), "Ordering bucket")
	cmd.Flags().StringVar(&week, "week", "", "Any day of the week to repair (YYYY-MM-DD, default this week)")
	cmd.Flags().BoolVar(&renumber, "renumber", false, "Rewrite ranks even when the ordering is healthy")
	return cmd
}

func weekQuery(day string, category model.Category) (store.RangeQuery, error) {
	t := time.Now()
	if day != "" {
		var err error
		t, err = time.ParseInLocation("2006-01-02", day, time.Local)
		if err != nil {
			return store.RangeQuery{}, fmt.Errorf("invalid --week %q: %w", day, err)
		}
	}
	start := action.WeekStart(t)
	return store.RangeQuery{
		Start:    start,
		End:      start.AddDate(0, 0, 7).Add(-time.Millisecond),
		Category: category,
	}, nil
}

func newCountCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of stored rows, tombstones included",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.Close()

			s, err := app.openStore()
			if err != nil {
				return err
			}
			n, err := s.CountItems(contextOf(cmd))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newPurgeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "purge <uuid>",
		Short: "Remove an item permanently from the local database",
		Long:  "Remove an item permanently. The deletion is not synced; other devices keep their copy.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.load(cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer app.Close()

			s, err := app.openStore()
			if err != nil {
				return err
			}
			ctx := contextOf(cmd)

			it, err := s.GetItemByUUID(ctx, args[0])
			if err != nil {
				return err
			}
			if err := s.HardDeleteItem(ctx, *it); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "purged %s\n", it.UUID)
			return nil
		},
	}
}

func newLoginCmd(_ *App) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Store the sync access token in the system keyring",
		Long:  "Reads the access token from stdin and stores it in the system keyring.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.ErrOrStderr(), "access token: ")
			line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			token := strings.TrimSpace(line)
			if token == "" {
				if err != nil {
					return fmt.Errorf("reading token: %w", err)
				}
				return errors.New("empty token")
			}
			if err := credential.Set(credential.TokenKey, token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "token saved")
			return nil
		},
	}
}

func newLogoutCmd(_ *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the sync access token from the system keyring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return credential.Delete(credential.TokenKey)
		},
	}
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
