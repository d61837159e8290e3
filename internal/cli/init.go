package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/habitsync/internal/config"
)

type InitCmd struct {
	Force  bool   `help:"Delete the existing local store before initializing."`
	Remote bool   `help:"Also create the schema on the remote store."`
	Source string `help:"Local store file (SQLite or .json) to import habits from."`
}

func (c *InitCmd) Run(ctx *Context) error {
	if ctx.ConfigPath != "" {
		path := config.ExpandPath(ctx.ConfigPath)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			if err := ctx.Config.Save(path); err != nil {
				return err
			}
			ctx.printf("Wrote config to: %s\n", path)
		}
	}

	localPath := config.ExpandPath(ctx.Config.LocalPath)
	if c.Force {
		if c.Source != "" && samePath(c.Source, localPath) {
			return fmt.Errorf("cannot use --force when source and destination are the same: %s", localPath)
		}
		if err := ctx.Store.Close(); err != nil {
			return fmt.Errorf("failed to close existing store: %w", err)
		}
		if err := os.Remove(localPath); err == nil {
			ctx.printf("Deleted existing store at: %s\n", localPath)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete existing store: %w", err)
		}
	}

	if err := ctx.Store.Init(ctx.runCtx()); err != nil {
		return err
	}
	ctx.printf("Initialized habitsync storage at: %s\n", ctx.Store.Location())

	if c.Source != "" {
		ctx.printf("Importing habits from: %s\n", c.Source)
		n, err := c.importFrom(ctx)
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}
		ctx.printf("  Imported %d habits\n", n)
	}

	if c.Remote {
		var secrets config.SecretStore
		if ctx.Secrets != nil {
			secrets = ctx.Secrets
		}
		connStr, _, err := ctx.Config.ResolveRemote(secrets)
		if err != nil {
			return err
		}
		if connStr == "" {
			return ErrNoRemote
		}
		remote := ctx.newRemote(connStr)
		if err := remote.Init(ctx.runCtx()); err != nil {
			return fmt.Errorf("failed to initialize remote store: %w", err)
		}
		defer remote.Close()
		ctx.printf("Initialized remote store at: %s\n", remote.Location())
	}
	return nil
}

// importFrom copies every record of the configured user, tombstones
// included, from the source store into the local store.
func (c *InitCmd) importFrom(ctx *Context) (int, error) {
	src := NewLocalStore(c.Source, ctx.storeOptions()...)
	if err := src.Load(ctx.runCtx()); err != nil {
		return 0, fmt.Errorf("failed to load source store: %w", err)
	}
	defer src.Close()

	habits, err := src.GetAll(ctx.runCtx(), ctx.Config.UserID)
	if err != nil {
		return 0, fmt.Errorf("failed to read habits from source: %w", err)
	}
	for _, h := range habits {
		if err := ctx.Store.Upsert(ctx.runCtx(), h); err != nil {
			return 0, fmt.Errorf("failed to import habit %s: %w", h.ID, err)
		}
	}
	return len(habits), nil
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(config.ExpandPath(a))
	absB, errB := filepath.Abs(config.ExpandPath(b))
	return errA == nil && errB == nil && absA == absB
}
