package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the debug and audit logger
var Log = logrus.New()

// Verbose reports whether debug logging is enabled
var Verbose bool

// Options configures Setup
type Options struct {
	Verbose bool
	JSON    bool
	// Output receives log lines; defaults to stderr.
	Output io.Writer
	// File, when set, receives a copy of every log line and is rotated.
	File string
}

// Setup configures the package logger
func Setup(opts Options) {
	Verbose = opts.Verbose

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	if opts.File != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		})
	}
	Log.SetOutput(out)

	if opts.JSON {
		Log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Log.SetFormatter(&logrus.TextFormatter{
			DisableTimestamp: opts.File == "",
			FullTimestamp:    true,
		})
	}

	switch {
	case opts.Verbose:
		Log.SetLevel(logrus.DebugLevel)
	case opts.File != "":
		Log.SetLevel(logrus.InfoLevel)
	default:
		Log.SetLevel(logrus.WarnLevel)
	}
}

// Challenge returns a log entry scoped to one challenge
func Challenge(name string) *logrus.Entry {
	return Log.WithField("challenge", name)
}
