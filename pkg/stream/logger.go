package stream

import (
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a development-style logr.Logger backed by zap, honoring
// logr verbosity up to the given level and writing to w. It is a convenience
// for callers that do not already carry a logger.
func NewLogger(verbosity int, w io.Writer) logr.Logger {
	encoder := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
	// logr V-levels map to negative zap levels.
	core := zapcore.NewCore(encoder, zapcore.AddSync(w), zapcore.Level(-verbosity))
	return zapr.NewLogger(zap.New(core))
}
