// Package logging builds the process logger and the operation audit log.
//
// The process logger is zap. It writes human-readable console output when
// stderr is a terminal and JSON otherwise, so the same binary reads well in
// a shell and in a log pipeline. Audit entries are appended as JSON Lines
// to a separate file.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// Log output formats.
const (
	FormatAuto    = "auto"
	FormatConsole = "console"
	FormatJSON    = "json"
)

// New builds a logger writing to stderr at the given level ("debug",
// "info", "warn", "error") and format (FormatAuto, FormatConsole,
// FormatJSON).
func New(level, format string) (*zap.Logger, error) {
	return build(level, format, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
}

func build(level, format string, w io.Writer, tty bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		lvl = parsed
	}

	var encoder zapcore.Encoder
	switch format {
	case FormatConsole:
		encoder = consoleEncoder()
	case FormatJSON:
		encoder = jsonEncoder()
	case FormatAuto, "":
		if tty {
			encoder = consoleEncoder()
		} else {
			encoder = jsonEncoder()
		}
	default:
		return nil, fmt.Errorf("log format %q: must be %s, %s or %s", format, FormatAuto, FormatConsole, FormatJSON)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), zap.NewAtomicLevelAt(lvl))
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

func consoleEncoder() zapcore.Encoder {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return zapcore.NewConsoleEncoder(cfg)
}

func jsonEncoder() zapcore.Encoder {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}
