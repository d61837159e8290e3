package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/mattn/go-isatty"

	"github.com/julianstephens/habitsync/internal/cli"
	"github.com/julianstephens/habitsync/internal/config"
	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/errors"
	"github.com/julianstephens/habitsync/internal/keyring"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/storage"
)

var CLI struct {
	Version kong.VersionFlag
	Config  string `help:"Config file path." type:"string" default:"${config_path}"`
	User    string `help:"User whose habits to operate on. Overrides user_id from the config."`
	Debug   bool   `help:"Mirror debug logs to stderr."`

	Init   cli.InitCmd   `cmd:"" help:"Initialize habitsync storage."`
	Habit  cli.HabitCmd  `cmd:"" help:"Manage habits and completions."`
	Sync   cli.SyncCmd   `cmd:"" help:"Reconcile the local store with the remote store."`
	Watch  cli.WatchCmd  `cmd:"" help:"Deliver reminders and sync periodically."`
	Remote cli.RemoteCmd `cmd:"" help:"Manage the remote store connection."`
	Backup cli.BackupCmd `cmd:"" help:"Manage local database backups."`
	Doctor cli.DoctorCmd `cmd:"" help:"Run health checks and diagnostics."`
}

func main() {
	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Offline-first habit tracker with PostgreSQL sync"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_path": constants.DefaultConfigPath,
		},
	)

	cfg, err := config.Load(CLI.Config)
	if err != nil {
		errors.Fatal(err)
	}
	if CLI.User != "" {
		cfg.UserID = CLI.User
	}
	if CLI.Debug {
		cfg.Debug = true
	}

	if err := logger.Init(logger.Config{Debug: cfg.Debug, ConfigDir: config.Dir(CLI.Config)}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		errors.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := cli.NewLocalStore(cfg.LocalPath, storage.WithLocation(loc))
	secrets := keyring.Default()
	appCtx := &cli.Context{
		Ctx:         ctx,
		Config:      cfg,
		ConfigPath:  CLI.Config,
		Store:       store,
		Secrets:     secrets,
		Location:    loc,
		Now:         time.Now,
		Out:         os.Stdout,
		Interactive: isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()),
	}

	// init creates the store itself
	if kctx.Selected() != nil && kctx.Selected().Name != "init" {
		if err := store.Load(ctx); err != nil {
			errors.Fatal(err)
		}
	}
	defer store.Close()

	logger.Debug("Running command", "command", kctx.Command(), "user", cfg.UserID, "store", store.Location())
	if err := kctx.Run(appCtx); err != nil {
		store.Close()
		errors.Fatal(err)
	}
}
