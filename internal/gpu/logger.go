//go:build !nogpu

package gpu

import (
	"log/slog"
)

func discardLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

// SetLogger replaces the backend's logger. nil discards output.
// The host GPU calls it when it adopts the backend.
func (b *Backend) SetLogger(l *slog.Logger) {
	if l == nil {
		l = discardLogger()
	}
	b.mu.Lock()
	b.log = l
	b.mu.Unlock()
}
