package cli

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"worklog/internal/actions"
	"worklog/internal/engine"
	"worklog/internal/entity"
	"worklog/internal/store"
	"worklog/internal/transport"
)

// RootOptions holds the global flags shared by all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command for the worklog CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "worklog",
		Short:         "Offline-tolerant work time tracker",
		Long:          "Records activities, missions and expenditures locally and reconciles them with the backend whenever it is reachable.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", DefaultConfigPath(), "configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewStartCommand(opts))
	cmd.AddCommand(NewActivityCommand(opts))
	cmd.AddCommand(NewEndCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewExpenditureCommand(opts))
	cmd.AddCommand(NewCommentCommand(opts))
	cmd.AddCommand(NewVehicleCommand(opts))
	cmd.AddCommand(NewPendingCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))

	return cmd
}

// App bundles the wired components behind one command invocation.
type App struct {
	Config  Config
	Store   *store.Store
	Engine  *engine.Engine
	Actions *actions.Actions
	Alerts  *PrinterAlerts
	Log     *slog.Logger

	db   *store.SQLite
	stop context.CancelFunc
}

// sessionBus carries store-changed broadcasts between the sessions of one
// process, the counterpart of a browser BroadcastChannel. A CLI process
// usually holds a single session, so most runs only ever post.
var sessionBus = store.NewBus()

// open loads the config and wires store, transport, engine and actions.
func (opts *RootOptions) open(cmd *cobra.Command) (*App, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "configuration", Err: err}
	}

	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "create data directory", Err: err}
	}
	db, err := store.OpenSQLite(cfg.Database)
	if err != nil {
		return nil, &ExitError{Code: ExitCommandError, Message: "open database", Err: err}
	}

	endpoint := sessionBus.Endpoint()
	st, err := store.Open(background(cmd), db,
		store.WithLogger(log),
		store.WithUserID(entity.ID(cfg.UserID)),
		store.WithNotifier(endpoint),
	)
	if err != nil {
		db.Close()
		return nil, &ExitError{Code: ExitCommandError, Message: "open store", Err: err}
	}
	watchCtx, stopWatch := context.WithCancel(background(cmd))
	go st.Watch(watchCtx, endpoint)

	client := transport.NewClient(cfg.APIHost,
		transport.WithTimeout(cfg.Timeout()),
		transport.WithTransportLogger(log),
	)

	registry := engine.NewRegistry()
	eng := engine.New(st, client, registry, engine.WithLogger(log))
	alerts := NewPrinterAlerts(cmd.OutOrStdout())
	acts := actions.New(st, eng, registry,
		actions.WithAlerts(alerts),
		actions.WithLogger(log),
	)

	return &App{
		Config:  cfg,
		Store:   st,
		Engine:  eng,
		Actions: acts,
		Alerts:  alerts,
		Log:     log,
		db:      db,
		stop:    stopWatch,
	}, nil
}

// Close stops the update watcher and releases the database.
func (a *App) Close() error {
	a.stop()
	return a.db.Close()
}

// Done settles a command's exit status: alerts rendered during the run mean
// the backend rejected something.
func (a *App) Done() error {
	if a.Alerts.Failed() {
		return &ExitError{Code: ExitFailure, Message: "action rejected"}
	}
	return nil
}

// parseWhen parses a time flag: "now" (or empty), a unix timestamp, or
// RFC 3339.
func parseWhen(s string) (int64, error) {
	if s == "" || s == "now" {
		return time.Now().Unix(), nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, &ExitError{Code: ExitCommandError, Message: "invalid time " + strconv.Quote(s), Err: err}
	}
	return t.Unix(), nil
}

// parseIDList parses a comma-separated list of user identifiers.
func parseIDList(s string) ([]entity.ID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]entity.ID, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, &ExitError{Code: ExitCommandError, Message: "invalid id list " + strconv.Quote(s), Err: err}
		}
		ids = append(ids, entity.ID(n))
	}
	return ids, nil
}

// background returns the command context, falling back to Background for
// tests constructing commands directly.
func background(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
