// Package logging builds the server's logrus logger and bridges GORM's logger onto it.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm/logger"
)

// New returns a logger at the given level. Output goes to stderr, or to a rotated file
// when file is non-empty.
func New(level, file string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %#v: %w", level, err)
	}

	var out io.Writer = os.Stderr
	if file != "" {
		out = &lumberjack.Logger{
			Filename:   file,
			MaxSize:    10, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
		}
	}

	logFormatter := new(logrus.TextFormatter)
	logFormatter.TimestampFormat = time.RFC3339
	logFormatter.FullTimestamp = true

	l := logrus.New()
	l.SetFormatter(logFormatter)
	l.SetLevel(lvl)
	l.SetOutput(out)
	return l, nil
}

// Discard returns a logger that drops everything, for tests.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// GormLogger sends GORM's warnings and slow queries to l.
func GormLogger(l logrus.FieldLogger) logger.Interface {
	return logger.New(
		l.WithField("fromSQL", true),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
