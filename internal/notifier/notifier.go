package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/julianstephens/habitsync/internal/constants"
	"github.com/julianstephens/habitsync/internal/logger"
	"github.com/julianstephens/habitsync/internal/reminder"
)

// ErrTrayNotRunning means no live tray process owns the lockfile.
var ErrTrayNotRunning = errors.New("habitsync-tray is not running")

var (
	userConfigDirFunc = os.UserConfigDir
	findProcessFunc   = ps.FindProcess
)

type WebhookPayload struct {
	Text       string `json:"text"`
	DurationMs uint32 `json:"duration_ms"`
}

// Tray posts reminders to the desktop tray application's local webhook.
type Tray struct {
	client     *http.Client
	retries    int
	retryDelay time.Duration
}

func NewTray() *Tray {
	return &Tray{
		client:     &http.Client{Timeout: 5 * time.Second},
		retries:    constants.NotifyMaxRetries,
		retryDelay: constants.NotifyRetryDelay,
	}
}

func (t *Tray) Notify(ctx context.Context, r reminder.Reminder) error {
	dir, err := GetTrayAppConfigDir()
	if err != nil {
		return err
	}

	port, secret, err := findAndValidateTrayProcess(filepath.Join(dir, constants.NotifierLockfileName))
	if err != nil {
		return err
	}

	payload := WebhookPayload{
		Text:       Text(r),
		DurationMs: constants.NotificationDurationMs,
	}

	var lastErr error
	for attempt := 0; attempt < t.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.retryDelay):
			}
		}
		if lastErr = t.send(ctx, port, secret, payload); lastErr == nil {
			return nil
		}
		logger.Debug("Tray notification attempt failed", "attempt", attempt+1, "error", lastErr)
	}
	return lastErr
}

// Text renders the message shown for a reminder.
func Text(r reminder.Reminder) string {
	return fmt.Sprintf("Time for %q (%s)", r.Title, r.At.Format(constants.TimeFormat))
}

// GetTrayAppConfigDir returns the directory holding the tray lockfile. The
// tray may point it elsewhere through lockfile_dir in its settings.json.
func GetTrayAppConfigDir() (string, error) {
	configDir, err := userConfigDirFunc()
	if err != nil {
		return "", fmt.Errorf("failed to get user config dir: %w", err)
	}
	trayConfigDir := filepath.Join(configDir, constants.TrayAppIdentifier)

	data, err := os.ReadFile(filepath.Join(trayConfigDir, "settings.json"))
	if err != nil {
		return trayConfigDir, nil
	}
	var store struct {
		Settings struct {
			LockfileDir *string `json:"lockfile_dir"`
		} `json:"settings"`
	}
	if err := json.Unmarshal(data, &store); err == nil && store.Settings.LockfileDir != nil && *store.Settings.LockfileDir != "" {
		return *store.Settings.LockfileDir, nil
	}
	return trayConfigDir, nil
}

// findAndValidateTrayProcess parses a "port|pid|secret" lockfile and checks
// that pid is a live tray process.
func findAndValidateTrayProcess(lockfilePath string) (string, string, error) {
	content, err := os.ReadFile(lockfilePath)
	if err != nil {
		return "", "", ErrTrayNotRunning
	}

	parts := strings.Split(strings.TrimSpace(string(content)), "|")
	if len(parts) != 3 {
		return "", "", errors.New("lockfile is malformed")
	}

	port := strings.TrimSpace(parts[0])
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return "", "", errors.New("invalid port number in lockfile")
	}
	if portNum < 1 || portNum > 65535 {
		return "", "", fmt.Errorf("port number %d is outside valid range (1-65535)", portNum)
	}

	pid, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", "", errors.New("invalid process ID in lockfile")
	}
	secret := strings.TrimSpace(parts[2])
	if secret == "" {
		return "", "", errors.New("secret in lockfile is empty")
	}

	process, err := findProcessFunc(pid)
	if err != nil || process == nil {
		return "", "", ErrTrayNotRunning
	}
	if !strings.HasPrefix(process.Executable(), constants.TrayExecutablePrefix) {
		return "", "", fmt.Errorf("process with PID %d is not %s (is %s)", pid, constants.TrayExecutablePrefix, process.Executable())
	}

	return port, secret, nil
}

func (t *Tray) send(ctx context.Context, port, secret string, payload WebhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://127.0.0.1:"+port, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Habitsync-Secret", secret)

	res, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(res.Body)
	return fmt.Errorf("notification failed with status %d: %s", res.StatusCode, string(msg))
}

// Log writes reminders to the application log.
type Log struct{}

func (Log) Notify(_ context.Context, r reminder.Reminder) error {
	logger.Info("Reminder due", "habit", r.HabitID, "title", r.Title, "user", r.UserID)
	return nil
}

// Fallback tries Primary and hands the reminder to Secondary when the tray
// is not running.
type Fallback struct {
	Primary   reminder.Notifier
	Secondary reminder.Notifier
}

func (f Fallback) Notify(ctx context.Context, r reminder.Reminder) error {
	err := f.Primary.Notify(ctx, r)
	if errors.Is(err, ErrTrayNotRunning) {
		return f.Secondary.Notify(ctx, r)
	}
	return err
}
