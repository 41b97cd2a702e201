// Package xlog wires the engine's structured logging. Every subsystem
// logs through the package-level Logger rather than fmt.Println.
package xlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the shared engine-wide logger. Safe for concurrent use.
var Logger = defaultLogger()

// Config controls where and how verbosely the engine logs.
type Config struct {
	LogPath  string // empty means stderr only
	LogLevel string // debug|info|warn|error
}

type callerFormatter struct{}

func (callerFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ts := entry.Time.Format("15:04:05.000")
	level := strings.ToUpper(entry.Level.String())
	if len(level) > 4 {
		level = level[:4]
	}
	return []byte(fmt.Sprintf("[%s] [%s] (%s) %s\n", ts, level, caller(), entry.Message)), nil
}

func caller() string {
	for i := 2; i < 20; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		if strings.Contains(file, "sirupsen/logrus") || strings.Contains(file, "internal/xlog") {
			continue
		}
		fn := runtime.FuncForPC(pc).Name()
		return fmt.Sprintf("%s:%s:%d", filepath.Base(file), fn, line)
	}
	return "unknown:unknown:0"
}

func defaultLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(callerFormatter{})
	l.SetLevel(logrus.InfoLevel)
	l.SetOutput(os.Stderr)
	return l
}

func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Init (re)configures the shared Logger. Called once from engine.Open.
func Init(cfg Config) error {
	Logger.SetLevel(parseLevel(cfg.LogLevel))
	if cfg.LogPath == "" {
		Logger.SetOutput(os.Stderr)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.LogPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(cfg.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		Logger.SetOutput(os.Stderr)
		Logger.Warnf("failed to open log file %s, falling back to stderr: %v", cfg.LogPath, err)
		return nil
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, f))
	return nil
}
