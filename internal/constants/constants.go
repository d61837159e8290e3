package constants

import "time"

const (
	AppName            = "habitsync"
	Version            = "v0.3.0"
	DefaultKeyringUser = "remote-connection"
	DefaultConfigDir   = "~/.config/habitsync"
	DefaultConfigPath  = "~/.config/habitsync/config.yaml"
	DefaultLocalPath   = "~/.config/habitsync/habits.db"
	DefaultUserID      = "local"
	DefaultTimezone    = "Local"

	// DateFormat is the standard date format used throughout the application (YYYY-MM-DD)
	DateFormat = "2006-01-02"

	// TimeFormat is the standard time format used throughout the application (HH:MM)
	TimeFormat = "15:04"

	// Environment overrides
	EnvUserID    = "HABITSYNC_USER"
	EnvLocalPath = "HABITSYNC_LOCAL_PATH"
	EnvRemote    = "HABITSYNC_REMOTE"
	EnvDebug     = "HABITSYNC_DEBUG"

	// Sync constants
	DefaultSyncInterval = 15 * time.Minute
	MinSyncInterval     = time.Minute

	// Backup constants
	MaxBackups       = 14
	BackupDirName    = "backups"
	BackupFilePrefix = "habitsync-"
	BackupFileSuffix = ".db"

	// Notify constants
	NotifyMaxRetries       = 3
	NotifyRetryDelay       = 100 * time.Millisecond
	NotifierLockfileName   = "habitsync-notifier.lock"
	NotificationDurationMs = 5000
	TrayAppIdentifier      = "com.julianstephens.habitsync"
	TrayExecutablePrefix   = "habitsync-tray"

	// Document schema version written by the codec
	DocumentSchemaVersion = 1
)
