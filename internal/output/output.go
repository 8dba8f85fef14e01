// Package output provides styled terminal output helpers (success, error,
// warning, course and class formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/marcus/yoga/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	priceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	statusStyles = map[models.ClassStatus]lipgloss.Style{
		models.StatusScheduled: lipgloss.NewStyle().Foreground(lipgloss.Color("45")),
		models.StatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.StatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
		models.StatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
	syncStyles = map[models.SyncState]lipgloss.Style{
		models.SyncUnsynced:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SyncKeyAssigned: lipgloss.NewStyle().Foreground(lipgloss.Color("141")),
		models.SyncSynced:      lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}
)

// Stdout and Stderr are where messages go; tests may swap them
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Fprintln(Stdout, successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message to stderr
func Error(format string, args ...interface{}) {
	fmt.Fprintln(Stderr, errorStyle.Render("ERROR: "+fmt.Sprintf(format, args...)))
}

// Warning prints a warning message to stderr
func Warning(format string, args ...interface{}) {
	fmt.Fprintln(Stderr, warningStyle.Render("Warning: "+fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Fprintln(Stdout, fmt.Sprintf(format, args...))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(Stdout, string(data))
	return nil
}

// Error codes for structured JSON output
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeInvalidInput  = "invalid_input"
	ErrCodeConflict      = "conflict"
	ErrCodeDatabaseError = "database_error"
	ErrCodeRemoteError   = "remote_error"
)

// JSONError outputs an error as JSON
func JSONError(code, message string) {
	data, _ := json.Marshal(map[string]interface{}{
		"error": map[string]string{"code": code, "message": message},
	})
	fmt.Fprintln(Stdout, string(data))
}

// IsTerminal reports whether stdout is an interactive terminal
func IsTerminal() bool {
	f, ok := Stdout.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// TerminalWidth returns the current terminal width or fallback when unavailable
func TerminalWidth(fallback int) int {
	if f, ok := Stdout.(*os.File); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 {
			return width
		}
	}
	if cols := os.Getenv("COLUMNS"); cols != "" {
		if parsed, err := strconv.Atoi(cols); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

// FormatTimeAgo formats a time as a human-readable "ago" string
func FormatTimeAgo(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
