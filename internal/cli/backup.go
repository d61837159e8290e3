package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitsync/internal/backup"
	"github.com/julianstephens/habitsync/internal/constants"
)

type BackupCmd struct {
	Create  BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
	List    BackupListCmd    `cmd:"" help:"List available backups."`
	Restore BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
}

var errBackupUnsupported = errors.New("backups are only available for the SQLite local store")

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *Context) error {
	mgr := ctx.BackupManager()
	if mgr == nil {
		return errBackupUnsupported
	}
	info, err := mgr.Create(ctx.runCtx())
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	ctx.printf("✓ Backup created: %s\n", info.Name())
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *Context) error {
	mgr := ctx.BackupManager()
	if mgr == nil {
		return errBackupUnsupported
	}
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}

	if len(backups) == 0 {
		ctx.println("No backups found.")
		ctx.printf("Backups are stored in: %s\n", mgr.Dir())
		return nil
	}

	ctx.printf("Available backups (%d total, keeping most recent %d):\n\n", len(backups), constants.MaxBackups)
	for _, b := range backups {
		ctx.printf("  %s  %s  (%.1f KB)\n", b.Timestamp.Format("2006-01-02 15:04:05"), b.Name(), float64(b.Size)/1024.0)
	}
	ctx.printf("\nBackup directory: %s\n", mgr.Dir())
	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or filename of the backup to restore."`
	Yes        bool   `short:"y" help:"Skip the confirmation prompt."`
}

func (c *BackupRestoreCmd) Run(ctx *Context) error {
	mgr := ctx.BackupManager()
	if mgr == nil {
		return errBackupUnsupported
	}

	path, err := resolveBackupPath(mgr, c.BackupFile)
	if err != nil {
		return err
	}

	if !c.Yes {
		if !ctx.Interactive {
			return errors.New("refusing to restore without confirmation (pass --yes)")
		}
		confirmed := false
		err := huh.NewConfirm().
			Title(fmt.Sprintf("Restore from %s?", filepath.Base(path))).
			Description("This replaces the local database. Stop any running 'habitsync watch' first.\nA backup of the current database is taken before restoring.").
			Value(&confirmed).
			Run()
		if err != nil && !errors.Is(err, huh.ErrUserAborted) {
			return err
		}
		if !confirmed {
			ctx.println("Restore cancelled.")
			return nil
		}
	}

	if err := ctx.Store.Close(); err != nil {
		return fmt.Errorf("failed to close local database: %w", err)
	}
	safety, err := mgr.Restore(ctx.runCtx(), path)
	if safety != nil {
		ctx.printf("Current database saved as %s\n", safety.Name())
	}
	if err != nil {
		if lerr := ctx.Store.Load(ctx.runCtx()); lerr != nil {
			return fmt.Errorf("restore failed: %w (reopening database: %v)", err, lerr)
		}
		return fmt.Errorf("restore failed: %w", err)
	}
	if err := ctx.Store.Load(ctx.runCtx()); err != nil {
		return fmt.Errorf("failed to reopen restored database: %w", err)
	}

	ctx.println("✓ Database restored successfully!")
	return nil
}

// resolveBackupPath accepts an absolute path, a path relative to the
// working directory, or a bare filename inside the backup directory.
func resolveBackupPath(mgr *backup.Manager, name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("backup file not found: %s", name)
		}
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	candidate := filepath.Join(mgr.Dir(), name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("backup file not found: tried current directory and %s", mgr.Dir())
}
