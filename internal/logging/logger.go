package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. Production gets JSON with an ISO8601
// "timestamp" key; dev gets the colored console encoder. An empty level
// keeps the environment default (info in prod, debug in dev).
func New(level, env string, opts ...zap.Option) (*zap.Logger, error) {
	var config zap.Config
	if strings.EqualFold(env, "prod") {
		config = zap.NewProductionConfig()
		config.EncoderConfig.CallerKey = "caller"
		config.EncoderConfig.StacktraceKey = "stacktrace"
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level = strings.TrimSpace(level); level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		config.Level.SetLevel(lvl)
	}

	return config.Build(opts...)
}
