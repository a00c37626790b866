package utils

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SetUpLogger configures the global logrus logger.  jsonFormat is meant for CI systems that
// ingest structured logs; everything else gets the human-readable text formatter.
func SetUpLogger(logLevelStr string, jsonFormat bool) error {
	logLevel, err := logrus.ParseLevel(logLevelStr)
	if err != nil {
		return errors.Wrapf(err, "unable to parse the specified log level: '%s'", logLevelStr)
	}
	logrus.SetLevel(logLevel)
	if jsonFormat {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}
	logrus.Infof("log level set to '%s'", logrus.GetLevel())
	return nil
}
