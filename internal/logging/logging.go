package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// New builds the process logger. Console output is human formatted;
// the file sink is JSON and rotated by lumberjack.
//
// The returned closer stops the file sink; it is safe to call with no
// file sink configured.
func New(cfg Config) (zerolog.Logger, io.Closer) {
	var sinks []io.Writer
	var closer io.Closer = nopCloser{}

	if cfg.Console {
		sinks = append(sinks, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: consoleTimeFormat,
		})
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    orDefault(cfg.File.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.File.MaxBackups, 3),
			MaxAge:     orDefault(cfg.File.MaxAgeDays, 28),
		}
		sinks = append(sinks, lj)
		closer = lj
	}
	if len(sinks) == 0 {
		sinks = append(sinks, zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: consoleTimeFormat,
		})
	}

	// Level is controlled globally so config hot reload can re-level
	// every derived logger at once.
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level, zerolog.InfoLevel))

	log := zerolog.New(zerolog.MultiLevelWriter(sinks...)).
		With().Timestamp().Logger()
	return log, closer
}

// ParseLevel maps a config string to a zerolog level, falling back to def.
func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return def
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
