// Package logging builds the structured loggers used by the bridge.
//
// Components receive a logr.Logger in their constructors. The concrete sink is
// zap, encoding human readable console lines on stderr; stdout stays free for
// the MCP stdio transport.
package logging

import (
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	verbosityFlagName      = "verbosity"
	verbosityFlagShortName = "v"
)

// Logger couples a logr.Logger with the zap level that controls it.
type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a console logger named name at info level.
func New(name string) *Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEncoder := zapcore.NewConsoleEncoder(encoderConfig)

	atomicLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core := zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stderr), atomicLevel)
	zapLogger := zap.New(core)

	return &Logger{
		Logger:      zapr.NewLogger(zapLogger).WithName(name),
		atomicLevel: atomicLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}
}

// SetVerbosity maps a logr verbosity (0 = info, 1 = debug, ...) onto the zap level.
func (l *Logger) SetVerbosity(v int) {
	if v < 0 {
		l.atomicLevel.SetLevel(zapcore.ErrorLevel)
		return
	}
	l.atomicLevel.SetLevel(zapcore.Level(-v))
}

// Flush writes out any buffered entries.
func (l *Logger) Flush() {
	l.flush()
}

// AddLevelFlag registers -v/--verbosity on fs.
func (l *Logger) AddLevelFlag(fs *pflag.FlagSet) {
	fs.VarP(&levelFlag{logger: l}, verbosityFlagName, verbosityFlagShortName,
		"Logging verbosity: 0 for info, 1 for protocol traffic, 2 and above for everything")
}
