// Command postctl administers a PostPilot deployment from the shell: schema
// migrations, plan grants, bans, usage resets, API tokens and usage snapshots.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/DukeRupert/postpilot/internal"
	"github.com/DukeRupert/postpilot/internal/repository"
	"github.com/DukeRupert/postpilot/internal/service"
	"github.com/DukeRupert/postpilot/internal/storage"
	"github.com/DukeRupert/postpilot/internal/usage"
	"github.com/DukeRupert/postpilot/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

// app is everything a command may touch. Tests build one from fakes.
type app struct {
	users    service.UserService
	quota    service.QuotaService
	queue    worker.Queue
	storage  storage.Storage
	migrate  func(ctx context.Context) (int64, error)
	out      io.Writer
	now      func() time.Time
	closeFns []func() error
}

func (a *app) Close() error {
	var first error
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		if err := a.closeFns[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openApp connects to the database and usage store described by the environment.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}
	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	a := &app{out: os.Stdout, now: time.Now, closeFns: []func() error{db.Close}}

	repo := repository.New(db)
	store, closeStore, err := usage.New(ctx, usage.Options{
		Backend:  cfg.UsageStore,
		Queries:  repo,
		RedisURL: cfg.RedisURL,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("usage store initialization failed: %w", err)
	}
	a.closeFns = append(a.closeFns, closeStore)

	snapshots, err := internal.NewStorage(cfg, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("storage initialization failed: %w", err)
	}

	a.users = service.NewUserService(repo, logger)
	a.quota = service.NewQuotaService(store, logger)
	a.queue = repo
	a.storage = snapshots
	a.migrate = func(ctx context.Context) (int64, error) {
		if err := internal.RunMigrations(ctx, db); err != nil {
			return 0, err
		}
		return internal.MigrationVersion(ctx, db)
	}
	return a, nil
}

// newRootCmd builds the command tree. open is called once per command run.
func newRootCmd(open func(ctx context.Context) (*app, error)) *cobra.Command {
	var a *app

	root := &cobra.Command{
		Use:           "postctl",
		Short:         "PostPilot administration",
		Long:          `Manage PostPilot users, plans, usage counters and usage snapshots`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Runnable() || cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			opened, err := open(cmd.Context())
			if err != nil {
				return err
			}
			a = opened
			if a.out == nil {
				a.out = cmd.OutOrStdout()
			}
			if a.now == nil {
				a.now = time.Now
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a == nil {
				return nil
			}
			return a.Close()
		},
	}

	get := func() *app { return a }

	root.AddCommand(
		newMigrateCmd(get),
		newUserCmd(get),
		newPlanCmd(get),
		newBanCmd(get),
		newUnbanCmd(get),
		newUsageCmd(get),
		newTokenCmd(get),
		newStatsCmd(get),
		newSnapshotCmd(get),
	)
	return root
}

func newMigrateCmd(app func() *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := app()
			version, err := a.migrate(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(a.out, "Database at version %d\n", version)
			return nil
		},
	}
}

func main() {
	ctx := context.Background()
	if err := newRootCmd(openApp).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
