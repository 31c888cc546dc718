// File: internal/logging/logger.go
// Brief: zap-backed logr loggers for the CLI and client-go.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/klog/v2"
	crzap "sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// ParseLevel maps a --log-level value onto a zap level.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}
}

// New returns a logger writing to out (stderr when nil). Debug switches to
// the human-readable development encoder; V(1) messages appear only there.
func New(level string, out io.Writer) (logr.Logger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return logr.Logger{}, err
	}
	if out == nil {
		out = os.Stderr
	}
	atomic := zap.NewAtomicLevelAt(zapLevel)
	opts := crzap.Options{
		Development: zapLevel == zapcore.DebugLevel,
		Level:       &atomic,
		DestWriter:  out,
	}
	return crzap.New(crzap.UseFlagOptions(&opts)).WithName("cosyctl"), nil
}

// RedirectKlog sends client-go's klog output through log.
func RedirectKlog(log logr.Logger) {
	klog.SetLogger(log.WithName("client-go"))
}
