// Package observability builds the process-wide zap logger and the
// OpenTelemetry trace and log pipelines.
package observability

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a JSON logger writing to stdout at level (debug, info,
// warn, error; anything else means info). Extra cores, such as the one from
// SetupLogExport, receive the same records.
func NewLogger(serviceName, level string, extra ...zapcore.Core) *zap.Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.EncodeTime = zapcore.ISO8601TimeEncoder
	lvl := parseLevel(level)
	cores := []zapcore.Core{zapcore.NewCore(
		zapcore.NewJSONEncoder(enc),
		zapcore.Lock(os.Stdout),
		lvl,
	)}
	for _, c := range extra {
		if ic, err := zapcore.NewIncreaseLevelCore(c, lvl); err == nil {
			c = ic
		}
		cores = append(cores, c)
	}
	return zap.New(zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", serviceName)),
	)
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
