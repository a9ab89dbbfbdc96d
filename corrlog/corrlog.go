// Package corrlog binds a scan_id to every log record emitted during
// one pipeline execution. The operational logger (Op) is process-wide,
// adapted from the same atomic.Pointer[slog.Logger] idiom used for
// infrastructure logging; the per-pipeline scan_id binding itself is
// carried through context.Context, never written back into Op's
// package-level state, so concurrent pipelines never see each other's
// scan_id and there is no global mutable pipeline state.
package corrlog

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	opLogger.Store(slog.New(handler))
}

// Op returns the operational logger for process-level infrastructure
// logs, as opposed to the per-pipeline logger returned by FromContext.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetLevel changes the operational logger's level.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLevelFromString sets the operational logger's level from a
// config-file-friendly string; unrecognized values are ignored.
func SetLevelFromString(level string) {
	switch level {
	case "debug", "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "info", "INFO":
		logLevel.Set(slog.LevelInfo)
	case "warn", "WARN", "warning", "WARNING":
		logLevel.Set(slog.LevelWarn)
	case "error", "ERROR":
		logLevel.Set(slog.LevelError)
	}
}

type ctxKey struct{}

// NewScanID generates an 8-character correlation identifier.
func NewScanID() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// Bind returns a context carrying a logger derived from Op() with
// scan_id attached, plus the scan_id itself. Every log call made with
// the returned context's logger (via FromContext) carries scan_id.
// Binding never mutates Op()'s package-level logger: the scan-scoped
// logger lives only in the returned context, so it is automatically
// "unbound" the moment that context goes out of scope — there is no
// explicit unbind call to forget.
func Bind(ctx context.Context) (context.Context, string) {
	scanID := NewScanID()
	logger := Op().With("scan_id", scanID)
	return context.WithValue(ctx, ctxKey{}, logger), scanID
}

// FromContext returns the scan-bound logger installed by Bind, or the
// process-wide operational logger (with no scan_id field) if ctx was
// never bound. Log lines produced from an unbound context never carry
// scan_id, matching the invariant that scan_id is present only between
// bind and unbind.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return Op()
}
