// Package log sets up the daemon's op/go-logging logger: a colorized
// stderr backend by default, or syslog when requested, with the level
// resolved from HPS_LOG_LEVEL first, the --log-level flag otherwise.
package log

import (
	stdlog "log"
	"log/syslog"
	"os"

	"github.com/op/go-logging"
)

var syslogFormat = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.6s} ▶ %{message}`,
)
var stderrFormat = logging.MustStringFormatter(
	`%{color}hpsd ▶ %{message}%{color:reset}`,
)

// Setup configures the global op/go-logging backend and returns a logger
// under prefix. trySyslog requests the syslog backend; it falls back to
// stderr if syslog is unavailable.
func Setup(prefix string, defaultLevel logging.Level, trySyslog bool) *logging.Logger {
	log := logging.MustGetLogger(prefix)

	var backend logging.Backend
	if trySyslog {
		b, err := logging.NewSyslogBackendPriority(prefix, syslog.LOG_NOTICE)
		if err == nil {
			backend = b
			logging.SetFormatter(syslogFormat)
			if syslogBackend, ok := backend.(*logging.SyslogBackend); ok {
				stdlog.SetOutput(syslogBackend.Writer)
			}
		}
	}
	if backend == nil {
		backend = logging.NewLogBackend(os.Stderr, prefix, 0)
		logging.SetFormatter(stderrFormat)
	}

	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("HPS_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, prefix)
	case "ERROR":
		leveled.SetLevel(logging.ERROR, prefix)
	case "WARNING":
		leveled.SetLevel(logging.WARNING, prefix)
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, prefix)
	case "INFO":
		leveled.SetLevel(logging.INFO, prefix)
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, prefix)
	default:
		leveled.SetLevel(defaultLevel, prefix)
	}

	logging.SetBackend(leveled)
	return log
}

// LevelFromName parses a --log-level flag value, defaulting to INFO for an
// unrecognized name.
func LevelFromName(name string) logging.Level {
	lvl, err := logging.LogLevel(name)
	if err != nil {
		return logging.INFO
	}
	return lvl
}
