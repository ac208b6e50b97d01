// Package obslog is the structured logger shared by every reliudp package:
// a package-level default logger, leveled calls, and a banner helper for
// cmd entrypoints, backed by zap so every call site can attach structured
// fields (rid, seq, retries) instead of interpolating them into a string.
package obslog

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var base *zap.Logger

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.TimeKey = "ts"
	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		l = zap.NewNop()
	}
	base = l
}

// SetLevel raises the minimum level of the default logger; a level below
// the current one has no effect. Loggers already returned by Named keep
// their previous level.
func SetLevel(level zapcore.Level) {
	base = base.WithOptions(zap.IncreaseLevel(level))
}

// Named returns a child logger scoped to a component, e.g. obslog.Named("conn").
func Named(component string) *zap.Logger {
	return base.Named(component)
}

// Sync flushes buffered log entries; call before process exit.
func Sync() error {
	return base.Sync()
}

// Banner prints the application banner once, outside the structured-logging
// pipeline.
func Banner(title, version string) {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║              %s
║              version %s
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, title, version)
}

// Section prints an unstructured section header, used by cmd entrypoints
// to break up startup logs.
func Section(title string) {
	fmt.Printf("\n── %s ──\n\n", title)
}
