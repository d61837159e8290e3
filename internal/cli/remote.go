package cli

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/julianstephens/habitsync/internal/config"
	"github.com/julianstephens/habitsync/internal/keyring"
	"github.com/julianstephens/habitsync/internal/storage"
	"github.com/julianstephens/habitsync/internal/storage/postgres"
)

type RemoteCmd struct {
	Set    RemoteSetCmd    `cmd:"" help:"Store the remote connection string in the OS keyring."`
	Clear  RemoteClearCmd  `cmd:"" help:"Remove the remote connection string from the OS keyring."`
	Status RemoteStatusCmd `cmd:"" help:"Show where the remote connection comes from." default:"1"`
}

// RemoteSetCmd stores the remote connection string in the OS keyring
type RemoteSetCmd struct {
	ConnectionString string `arg:"" help:"PostgreSQL connection string."`
}

func (cmd *RemoteSetCmd) Run(ctx *Context) error {
	if ctx.Secrets == nil || !ctx.Secrets.IsAvailable() {
		return keyring.ErrKeyringUnavailable
	}

	if _, err := postgres.ValidateConnString(cmd.ConnectionString); err != nil {
		if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
			return fmt.Errorf("invalid connection string: %w", err)
		}
		// The keyring is encrypted, so an embedded password is tolerated here
		ctx.println("⚠️  Warning: Connection string contains embedded credentials.")
		ctx.println("   It will be stored as-is in the encrypted OS keyring.")
	}

	if err := ctx.Secrets.Set(cmd.ConnectionString); err != nil {
		return err
	}
	ctx.println("✓ Remote connection string stored in OS keyring")
	return nil
}

type RemoteClearCmd struct{}

func (cmd *RemoteClearCmd) Run(ctx *Context) error {
	if ctx.Secrets == nil {
		return keyring.ErrKeyringUnavailable
	}
	err := ctx.Secrets.Delete()
	if errors.Is(err, keyring.ErrNotFound) {
		ctx.println("No remote connection string stored in keyring")
		return nil
	}
	if err != nil {
		return err
	}
	ctx.println("✓ Remote connection string deleted from OS keyring")
	return nil
}

type RemoteStatusCmd struct{}

func (cmd *RemoteStatusCmd) Run(ctx *Context) error {
	if ctx.Secrets != nil && ctx.Secrets.IsAvailable() {
		ctx.println("✓ OS keyring is available")
	} else {
		ctx.println("❌ OS keyring is not available on this system")
	}

	var secrets config.SecretStore
	if ctx.Secrets != nil {
		secrets = ctx.Secrets
	}
	connStr, src, err := ctx.Config.ResolveRemote(secrets)
	if err != nil {
		return err
	}
	if connStr == "" {
		ctx.println("ℹ No remote configured")
		return nil
	}
	ctx.printf("Remote: %s (from %s)\n", maskPassword(connStr), src)

	if journal, ok := ctx.Journal(); ok {
		run, err := journal.LastSyncRun(ctx.runCtx(), ctx.Config.UserID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			ctx.println("Last sync: never")
		case err != nil:
			return err
		default:
			state := okStyle.Render("ok")
			if !run.Succeeded() {
				state = errStyle.Render(fmt.Sprintf("%d failures", run.Failures))
			}
			ctx.printf("Last sync: %s (%d local, %d remote writes, %s)\n",
				run.FinishedAt.In(ctx.now().Location()).Format("2006-01-02 15:04"),
				run.LocalWrites, run.RemoteWrites, state)
		}
	}
	return nil
}

// maskPassword hides the password of a URL or DSN connection string.
func maskPassword(connStr string) string {
	if postgres.IsConnString(connStr) {
		u, err := url.Parse(connStr)
		if err != nil {
			return "****"
		}
		if _, ok := u.User.Password(); ok {
			u.User = url.UserPassword(u.User.Username(), "****")
			return strings.Replace(u.String(), "%2A%2A%2A%2A", "****", 1)
		}
		return connStr
	}

	parts := strings.Fields(connStr)
	for i, part := range parts {
		if strings.HasPrefix(strings.ToLower(part), "password=") {
			parts[i] = "password=****"
		}
	}
	return strings.Join(parts, " ")
}
