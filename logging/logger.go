// Package logging provides per-component logrus loggers whose output never carries
// provider credentials.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex

	base     *logrus.Logger
	baseOnce sync.Once
)

func root() *logrus.Logger {
	baseOnce.Do(func() {
		base = logrus.New()
		base.SetOutput(os.Stderr)

		level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
		if err != nil {
			level = logrus.InfoLevel
		}
		base.SetLevel(level)

		var inner logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
		if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
			inner = &logrus.JSONFormatter{}
		}
		base.SetFormatter(&RedactingFormatter{Inner: inner})
	})
	return base
}

// NewLogger returns the logger for a component, creating it on first use.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, exists := loggers[component]; exists {
		return logger
	}
	logger := root().WithField("component", component)
	loggers[component] = logger
	return logger
}

// SetLevel changes the level of every component logger.
func SetLevel(level string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	root().SetLevel(lvl)
	return nil
}

// SetOutput redirects every component logger.
func SetOutput(w io.Writer) {
	root().SetOutput(w)
}

// SetJSON switches between JSON and text output.
func SetJSON(enabled bool) {
	var inner logrus.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	if enabled {
		inner = &logrus.JSONFormatter{}
	}
	root().SetFormatter(&RedactingFormatter{Inner: inner})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
