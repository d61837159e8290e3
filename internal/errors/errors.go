package errors

import (
	"fmt"
	"io"
	"os"

	"github.com/julianstephens/habitsync/internal/logger"
)

// Format renders err for the terminal with a consistent "Error: " prefix.
func Format(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("Error: %v", err)
}

func Formatf(format string, args ...interface{}) string {
	return fmt.Sprintf("Error: "+format, args...)
}

// Report logs err and writes it to w. It reports whether anything was written.
func Report(w io.Writer, err error) bool {
	if err == nil {
		return false
	}
	logger.Error("Command execution failed", "error", err)
	fmt.Fprintln(w, Format(err))
	return true
}

// Fatal reports err on stderr and exits with status 1. A nil err is ignored.
func Fatal(err error) {
	if Report(os.Stderr, err) {
		os.Exit(1)
	}
}

func Fatalf(format string, args ...interface{}) {
	Fatal(fmt.Errorf(format, args...))
}
