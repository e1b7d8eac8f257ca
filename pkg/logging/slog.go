// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of Cilium

package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leifkb/redis-luamodules/pkg/logging/logfields"
)

// logrErrorKey is the key used by the logr library for the error parameter.
const logrErrorKey = "err"

// Supported log formats.
const (
	LogFormatText          = "text"
	LogFormatTextTimestamp = "text-ts"
	LogFormatJSON          = "json"
	LogFormatJSONTimestamp = "json-ts"

	// DefaultLogFormat is the format used when none is configured.
	DefaultLogFormat = LogFormatText
)

// DefaultLogLevel is the level used when none is configured.
const DefaultLogLevel = logrus.InfoLevel

var levelVar = new(slog.LevelVar)

var slogHandlerOpts = &slog.HandlerOptions{
	AddSource:   false,
	Level:       levelVar,
	ReplaceAttr: ReplaceAttrFnWithoutTimestamp,
}

// DefaultSlogLogger is the logger used by library code that was not handed
// a logger explicitly. SetupLogging replaces its handler.
var DefaultSlogLogger *slog.Logger = slog.New(slog.NewTextHandler(
	os.Stderr,
	slogHandlerOpts,
))

func slogLevel(l logrus.Level) slog.Level {
	switch l {
	case logrus.DebugLevel, logrus.TraceLevel:
		return slog.LevelDebug
	case logrus.InfoLevel:
		return slog.LevelInfo
	case logrus.WarnLevel:
		return slog.LevelWarn
	case logrus.ErrorLevel, logrus.PanicLevel, logrus.FatalLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetLogLevel updates the level of DefaultSlogLogger and of every logger
// derived from it.
func SetLogLevel(l logrus.Level) {
	levelVar.Set(slogLevel(l))
}

// GetSlogLevel returns the level DefaultSlogLogger currently logs at.
func GetSlogLevel() slog.Level {
	return levelVar.Level()
}

// SetupLogging configures DefaultSlogLogger. The level is given as a logrus
// level name ("debug", "info", ...), case insensitive. An empty level or
// format selects the defaults.
func SetupLogging(level, format string, w io.Writer) error {
	lvl := DefaultLogLevel
	if level != "" {
		parsed, err := logrus.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		lvl = parsed
	}
	if w == nil {
		w = os.Stderr
	}

	opts := *slogHandlerOpts
	SetLogLevel(lvl)
	if levelVar.Level() == slog.LevelDebug {
		opts.AddSource = true
	}

	switch strings.ToLower(format) {
	case "", LogFormatText:
		opts.ReplaceAttr = ReplaceAttrFnWithoutTimestamp
		DefaultSlogLogger = slog.New(slog.NewTextHandler(w, &opts))
	case LogFormatTextTimestamp:
		opts.ReplaceAttr = replaceAttrFn
		DefaultSlogLogger = slog.New(slog.NewTextHandler(w, &opts))
	case LogFormatJSON:
		opts.ReplaceAttr = ReplaceAttrFnWithoutTimestamp
		DefaultSlogLogger = slog.New(slog.NewJSONHandler(w, &opts))
	case LogFormatJSONTimestamp:
		opts.ReplaceAttr = replaceAttrFn
		DefaultSlogLogger = slog.New(slog.NewJSONHandler(w, &opts))
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}
	return nil
}

func replaceAttrFn(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		// Adjust to timestamp format that logrus uses
		return slog.String(slog.TimeKey, a.Value.Time().Format(time.RFC3339))
	case slog.LevelKey:
		// Lower-case the log level
		return slog.Attr{
			Key:   a.Key,
			Value: slog.StringValue(strings.ToLower(a.Value.String())),
		}
	case logrErrorKey:
		// Uniform the attribute identifying the error
		return slog.Attr{
			Key:   logfields.Error,
			Value: a.Value,
		}
	}
	return a
}

func ReplaceAttrFnWithoutTimestamp(groups []string, a slog.Attr) slog.Attr {
	switch a.Key {
	case slog.TimeKey:
		// Drop timestamps
		return slog.Attr{}
	default:
		return replaceAttrFn(groups, a)
	}
}

func Fatal(logger *slog.Logger, msg string, args ...any) {
	logger.Error(msg, args...)
	os.Exit(-1)
}
