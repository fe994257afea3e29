// Package logging provides the structured logger shared by every component
// of the Colab runtime client: a colorized console sink for interactive use
// and an optional rotating file sink for long-lived `colab run` sessions.
package logging

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// FileConfig controls the rotating file sink. A zero value disables it.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// snippetCapture gates whether httpclient (4.A) captures request/response
// body snippets into debug-level log fields. Distinct from config.Config's
// per-transport RequestLog toggle: this one is process-wide and meant for
// ad-hoc debugging via an environment variable, not checked into config.yaml.
var snippetCapture atomic.Bool

func init() {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("COLAB_VERBOSE_LOGGING")))
	if v == "" {
		return
	}
	switch v {
	case "1", "true", "yes", "y", "on":
		snippetCapture.Store(true)
	case "0", "false", "no", "n", "off":
		snippetCapture.Store(false)
	}
}

// SnippetCaptureEnabled reports whether httpclient should attach
// request/response body snippets to its debug log entries.
func SnippetCaptureEnabled() bool {
	return snippetCapture.Load()
}

// SetSnippetCapture overrides the toggle at runtime, without touching any
// logger's level.
func SetSnippetCapture(enabled bool) {
	snippetCapture.Store(enabled)
}

// New builds a logrus logger tagged with component-scoped fields, the same
// way the donor tags request logs with endpoint/model/session identifiers.
func New(fc FileConfig) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	l.SetLevel(logrus.InfoLevel)
	if SnippetCaptureEnabled() {
		l.SetLevel(logrus.DebugLevel)
	}

	var out io.Writer = os.Stderr
	if fc.Path != "" {
		rotator := &lumberjack.Logger{
			Filename:   fc.Path,
			MaxSize:    orDefault(fc.MaxSizeMB, 50),
			MaxBackups: orDefault(fc.MaxBackups, 5),
			MaxAge:     orDefault(fc.MaxAgeDays, 28),
			Compress:   fc.Compress,
		}
		out = io.MultiWriter(os.Stderr, rotator)
	}
	l.SetOutput(out)
	return l
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// WithComponent returns an entry pre-tagged with the originating component
// name, matching the donor's `log.WithFields(log.Fields{...})` idiom used
// throughout its executors.
func WithComponent(l *logrus.Logger, component string) *logrus.Entry {
	return l.WithField("component", component)
}
