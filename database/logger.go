package database

import (
	"github.com/labstack/gommon/log"
	"github.com/xompass/vsaas-relations/helpers"
)

type LogLevel uint8

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

var LogLevelLabels = map[LogLevel]string{
	LogLevelDebug: "debug",
	LogLevelInfo:  "info",
	LogLevelWarn:  "warn",
	LogLevelError: "error",
}

var logLevels = map[LogLevel]log.Lvl{
	LogLevelDebug: log.DEBUG,
	LogLevelInfo:  log.INFO,
	LogLevelWarn:  log.WARN,
	LogLevelError: log.ERROR,
}

var logger = newLogger()

func newLogger() *log.Logger {
	l := log.New("database")
	l.SetHeader("${time_rfc3339} ${level} ${prefix}")
	l.SetLevel(logLevels[ParseLogLevel(helpers.GetEnvLower("DATABASE_LOG_LEVEL", "warn"))])
	return l
}

// ParseLogLevel maps a level label to a LogLevel. Unknown labels fall back to warn.
func ParseLogLevel(label string) LogLevel {
	for level, name := range LogLevelLabels {
		if name == label {
			return level
		}
	}
	return LogLevelWarn
}

// SetLogLevel changes the level of the package logger.
func SetLogLevel(level LogLevel) {
	lvl, ok := logLevels[level]
	if !ok {
		lvl = log.WARN
	}
	logger.SetLevel(lvl)
}

// Logger exposes the package logger, mostly to redirect its output.
func Logger() *log.Logger {
	return logger
}
