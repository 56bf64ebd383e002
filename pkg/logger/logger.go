package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the process-wide log instance. Components derive tagged entries
// from it via WithField("component", ...).
var (
	Logger = logrus.New()
	mu     sync.Mutex
)

// Config controls log level, format and optional file rotation.
type Config struct {
	Level      string // debug, info, warn, error
	OutputFile string // empty = console only
	MaxSize    int    // MB per file before rotation
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// Init configures the global logger. Safe to call more than once; the last
// call wins.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	formatter := &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
	}

	writers := []io.Writer{os.Stdout}
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	out := io.MultiWriter(writers...)

	Logger.SetLevel(level)
	Logger.SetFormatter(formatter)
	Logger.SetOutput(out)

	// Entries created through the logrus package default also land in the
	// same sinks, so logrus.WithField(...) loggers in components behave
	// identically to Logger-derived ones.
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter)
	logrus.SetOutput(out)
	return nil
}

// InitDefault configures console-only info logging.
func InitDefault() error {
	return Init(Config{Level: "info"})
}

func Debugf(format string, args ...interface{}) { Logger.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { Logger.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { Logger.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { Logger.Errorf(format, args...) }

func Info(args ...interface{})  { Logger.Info(args...) }
func Warn(args ...interface{})  { Logger.Warn(args...) }
func Error(args ...interface{}) { Logger.Error(args...) }

// WithField returns a tagged entry for component-scoped logging.
func WithField(key string, value interface{}) *logrus.Entry {
	return Logger.WithField(key, value)
}

// WithFields returns an entry tagged with several fields.
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}
