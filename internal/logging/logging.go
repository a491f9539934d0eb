package logging

import (
	"io"
	"os"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/sirupsen/logrus"
)

type Config struct {
	// Path of the log file. Logs go to stderr when empty.
	Path         string
	RotationTime time.Duration
	MaxAgeDays   int
	Level        string
	Format       string
	ReportCaller bool
}

func (c *Config) NewLogger() (*logrus.Logger, error) {
	var out io.Writer = os.Stderr
	if c.Path != "" {
		rotation := c.RotationTime
		if rotation <= 0 {
			rotation = 24 * time.Hour
		}
		maxAge := c.MaxAgeDays
		if maxAge <= 0 {
			maxAge = 7
		}
		w, err := rotatelogs.New(
			c.Path+"_%Y%m%d",
			rotatelogs.WithLinkName(c.Path),
			rotatelogs.WithRotationTime(rotation),
			rotatelogs.WithMaxAge(time.Duration(maxAge)*24*time.Hour),
		)
		if err != nil {
			return nil, err
		}
		out = w
	}

	logger := logrus.New()
	logger.SetOutput(out)

	switch strings.ToLower(c.Format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			DisableColors: true,
			FullTimestamp: true,
		})
	}

	if level, err := logrus.ParseLevel(c.Level); err != nil {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(level)
	}
	logger.SetReportCaller(c.ReportCaller)
	return logger, nil
}
