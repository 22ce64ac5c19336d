// package shared defines helpers used by every layer: logging, IDs,
// configuration, the database handle, and the cycle lock.
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a [log.Logger] writing to w with timestamps and caller
// reporting enabled. The writer defaults to [os.Stderr].
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	return log.NewWithOptions(w, log.Options{ReportTimestamp: true, ReportCaller: true})
}

// WithLogger creates a child [log.Logger] with the given key-value pairs
// attached to every entry.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// GenerateID returns a new v4 [uuid.UUID] string, used as the cycle run
// identifier attached to history records and log lines.
func GenerateID() string {
	return uuid.New().String()
}
