// Package logging builds the zap logger shared by the client and the mock
// server. The TUI owns stdout, so the client writes to .unirun/logs/unirun.log.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file inside the logs directory.
const FileName = "unirun.log"

// New builds a production zap logger writing JSON lines to logDir/unirun.log.
func New(logDir, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	return build([]string{filepath.Join(logDir, FileName)}, level)
}

// NewStdout builds the same logger writing to stdout, used by `unirun mock`.
func NewStdout(level string) (*zap.Logger, error) {
	return build([]string{"stdout"}, level)
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}

func build(outputs []string, level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	atom := zap.NewAtomicLevel()
	if err := atom.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return nil, fmt.Errorf("logging: level %q: %w", level, err)
	}
	cfg.Level = atom
	cfg.OutputPaths = outputs
	cfg.ErrorOutputPaths = outputs
	cfg.EncoderConfig.EncodeTime = customMillisTimeEncoder
	return cfg.Build()
}

// customMillisTimeEncoder set time format
func customMillisTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.UTC().Format("2006-01-02 15:04:05.000"))
}

// Printf adapts a zap logger to Printf-style consumers.
type Printf struct {
	L *zap.Logger
}

// Printf writes one info entry.
func (p Printf) Printf(format string, args ...any) {
	if p.L == nil {
		return
	}
	p.L.Info(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}
