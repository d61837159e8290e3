package logger

import (
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/julianstephens/habitsync/internal/constants"
)

// Logger is the process-wide logger. It stays nil until Init is called,
// and every helper below is a no-op while it is nil.
var Logger *log.Logger

type Config struct {
	Debug     bool
	ConfigDir string
	// Console, when set, receives log output alongside the log file.
	// Debug mode defaults it to stderr.
	Console io.Writer
}

// FilePath returns the location of the rotating log file under configDir.
func FilePath(configDir string) string {
	return filepath.Join(configDir, "logs", constants.AppName+".log")
}

func Init(cfg Config) error {
	logFile := FilePath(cfg.ConfigDir)
	if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
		return err
	}

	fileWriter := &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	console := cfg.Console
	if console == nil && cfg.Debug {
		console = os.Stderr
	}

	var writer io.Writer = fileWriter
	if console != nil {
		writer = io.MultiWriter(console, fileWriter)
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          constants.AppName,
	})
	return nil
}

// With returns a child logger carrying keyvals, or nil before Init.
func With(keyvals ...interface{}) *log.Logger {
	if Logger == nil {
		return nil
	}
	return Logger.With(keyvals...)
}

func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal logs at error level and exits. Before Init it only exits.
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
