// Package logs holds the process-wide logrus logger.
package logs

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is shared by every package. It is usable before Init is called.
var Logger = logrus.New()

// Options configures the shared logger.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // text|json
	File   string // optional; logs go to stdout and the file
}

// Init applies opts to Logger. An unknown level falls back to info.
func Init(opts Options) error {
	level, err := logrus.ParseLevel(strings.ToLower(opts.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)

	if strings.EqualFold(opts.Format, "json") {
		Logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	var out io.Writer = os.Stdout
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			Logger.SetOutput(out)
			return err
		}
		out = io.MultiWriter(os.Stdout, f)
	}
	Logger.SetOutput(out)
	return nil
}
