// Package logging provides the shared logger construction and the
// context plumbing used to carry a logger through dispatch and fan-out
// code paths.
package logging

import (
	"io"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/muesli/termenv"
)

// Flags holds the CLI flags that affect logging behavior.
type Flags struct {
	Verbose bool
	Quiet   bool
	NoColor bool
	JSON    bool
}

// NewLogger creates a new logger writing to the given writer.
// The default level is WarnLevel (suppresses debug/info).
func NewLogger(w io.Writer) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level: log.WarnLevel,
	})
}

// Configure adjusts the logger based on CLI flags.
// Quiet takes precedence over verbose when both are set.
func Configure(l *log.Logger, f Flags) {
	switch {
	case f.Quiet:
		l.SetLevel(log.ErrorLevel)
	case f.Verbose:
		l.SetLevel(log.DebugLevel)
	default:
		l.SetLevel(log.WarnLevel)
	}

	if f.NoColor {
		l.SetColorProfile(termenv.Ascii)
	}

	if f.JSON {
		l.SetFormatter(log.JSONFormatter)
	}
}

// MaskEmail shortens an email address for log output so account
// identities never land in logs verbatim.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		if len(email) > 3 {
			return email[:3] + "***"
		}
		return email + "***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) > 3 {
		local = local[:3]
	}
	if len(domain) > 3 {
		domain = domain[:3]
	}
	return local + "***@" + domain + "***"
}
