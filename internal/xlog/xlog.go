// Package xlog owns the process-wide logrus configuration so the two
// binaries (cmd/sequencerd, cmd/toriid) and the long-running engines all
// log through the same formatter and level.
package xlog

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a configured *logrus.Logger. level is one of logrus's level
// names ("debug", "info", ...); an unparsable level falls back to info.
// file, when non-empty, also appends to the named file; output goes to
// stderr either way.
func New(level, file string) *logrus.Logger {
	log := logrus.New()

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})

	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.WithError(err).Warn("xlog: cannot open log file, using stderr")
		} else {
			log.SetOutput(io.MultiWriter(os.Stderr, f))
		}
	}
	return log
}
