package logger

import (
	"github.com/sirupsen/logrus"
)

// New returns a JSON-formatted logrus logger at info level.
func New() *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	log.SetLevel(logrus.InfoLevel)
	return log
}
