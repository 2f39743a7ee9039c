// Package logging builds the loggers the command line tools use.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	nested "github.com/antonfisher/nested-logrus-formatter"
	"github.com/cockroachdb/errors"
	"github.com/shiena/ansicolor"
	"github.com/sirupsen/logrus"
)

type Options struct {
	// Level is parsed with logrus.ParseLevel; anything unparsable means info.
	Level string
	// Dir, when set, receives one log file per day.
	Dir      string
	Terminal bool
	// Stdout is the terminal writer, os.Stdout unless set.
	Stdout io.Writer
}

func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetFormatter(&nested.Formatter{
		HideKeys:        true,
		ShowFullLevel:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})

	logIO := make([]io.Writer, 0, 2)
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "creating log directory %s", opts.Dir)
		}
		filename := filepath.Join(opts.Dir, time.Now().Format("2006-01-02.log"))
		file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "opening log file %s", filename)
		}
		logIO = append(logIO, file)
	}
	if opts.Terminal {
		stdout := opts.Stdout
		if stdout == nil {
			stdout = os.Stdout
		}
		logIO = append(logIO, stdout)
	}

	log.SetOutput(ansicolor.NewAnsiColorWriter(io.MultiWriter(logIO...)))

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		log.SetLevel(logrus.InfoLevel)
	} else {
		log.SetLevel(level)
	}
	return log, nil
}
