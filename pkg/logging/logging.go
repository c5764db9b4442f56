// Package logging provides the structured logger shared by every component
// of the pool orchestrator.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger so the rest of the module depends on a narrow
// type instead of importing logrus directly everywhere.
type Logger struct {
	*logrus.Logger
}

// Config controls how a Logger is constructed.
type Config struct {
	Level      string `yaml:"level" env:"POOL_LOG_LEVEL"`
	Format     string `yaml:"format" env:"POOL_LOG_FORMAT"`
	Output     string `yaml:"output" env:"POOL_LOG_OUTPUT"`
	FilePrefix string `yaml:"file_prefix" env:"POOL_LOG_FILE_PREFIX"`
}

// New builds a Logger from Config.
func New(cfg Config) *Logger {
	base := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	base.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "poold"
		}
		dir := "logs"
		if err := os.MkdirAll(dir, 0o755); err != nil {
			base.Errorf("could not create log directory: %v", err)
			break
		}
		path := filepath.Join(dir, prefix+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			base.Errorf("could not open log file: %v", err)
			break
		}
		base.SetOutput(io.MultiWriter(os.Stdout, f))
	default:
		base.SetOutput(os.Stdout)
	}

	return &Logger{Logger: base}
}

// componentHook stamps every entry with a component field so loggers
// built with NewDefault stay distinguishable in merged output.
type componentHook struct{ name string }

func (h componentHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h componentHook) Fire(e *logrus.Entry) error {
	e.Data["component"] = h.name
	return nil
}

// NewDefault builds a Logger with sane text/stdout defaults, tagged with a
// component name.
func NewDefault(component string) *Logger {
	base := logrus.New()
	base.SetLevel(logrus.InfoLevel)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	base.SetOutput(os.Stdout)
	if component != "" {
		base.AddHook(componentHook{name: component})
	}
	return &Logger{Logger: base}
}

// WithField returns a derived entry carrying one structured field.
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields returns a derived entry carrying several structured fields.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError returns a derived entry carrying an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithField("error", err)
}

// Named returns a derived logger tagged with a component field on every
// subsequent call, used so each element engine component logs under its own
// name without threading a context object everywhere.
func (l *Logger) Named(component string) *Component {
	return &Component{log: l, name: component}
}

// Component is a Logger pinned to one component name.
type Component struct {
	log  *Logger
	name string
}

func (c *Component) entry() *logrus.Entry { return c.log.WithField("component", c.name) }

func (c *Component) Info(args ...interface{})  { c.entry().Info(args...) }
func (c *Component) Warn(args ...interface{})  { c.entry().Warn(args...) }
func (c *Component) Error(args ...interface{}) { c.entry().Error(args...) }
func (c *Component) Debug(args ...interface{}) { c.entry().Debug(args...) }

func (c *Component) WithField(key string, value interface{}) *logrus.Entry {
	return c.entry().WithField(key, value)
}

func (c *Component) WithError(err error) *logrus.Entry {
	return c.entry().WithField("error", err)
}
