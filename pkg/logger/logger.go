// Package logger builds the *zap.SugaredLogger every ignite component
// accepts through its Config.Logger field.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-tuned SugaredLogger for the given service name.
// Output goes to stderr as JSON, ISO8601 timestamps, and caller info — the
// shape every component in this module expects from its injected logger.
func New(service string) *zap.SugaredLogger {
	return NewWithLevel(service, zapcore.InfoLevel)
}

// NewWithLevel is New with an explicit minimum level, primarily for tests
// and the CLI's --verbose flag.
func NewWithLevel(service string, level zapcore.Level) *zap.SugaredLogger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.TimeKey = "ts"

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level),
	)

	base := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return base.Sugar().With("service", service)
}

// WithInstance returns a derived logger tagging every subsequent log line
// with the engine's instance label, so multi-instance deployments can
// attribute log output to a specific running engine.
func WithInstance(log *zap.SugaredLogger, instance string) *zap.SugaredLogger {
	return log.With("instance", instance)
}

// Nop returns a logger that discards everything, for tests that don't care
// about log output.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
