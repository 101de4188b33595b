package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Config controls verbosity and the optional rotating log file.
type Config struct {
	// Verbosity follows the -v count: 0 info, 1 debug, 2+ trace.
	Verbosity int
	// Level overrides Verbosity when set (trace|debug|info|warn|error).
	Level string
	File  string
}

var (
	mu      sync.Mutex
	rotator *lumberjack.Logger
)

func init() {
	logrus.SetFormatter(newFormatter())
	logrus.SetOutput(os.Stdout)
}

// Init configures the global logrus logger.
func Init(cfg Config) error {
	level, err := resolveLevel(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()

	var out io.Writer = os.Stdout
	if path := strings.TrimSpace(cfg.File); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "create log directory for %s", path)
		}
		if rotator != nil {
			_ = rotator.Close()
		}
		rotator = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    5,
			MaxBackups: 10,
			MaxAge:     14,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotator)
	}

	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(newFormatter())
	return nil
}

// GetLogger returns an entry tagged with the component prefix.
func GetLogger(prefix string) *logrus.Entry {
	return logrus.WithField("prefix", prefix)
}

// OrDefault returns log, or a prefixed default entry when log is nil.
func OrDefault(log *logrus.Entry, prefix string) *logrus.Entry {
	if log != nil {
		return log
	}
	return GetLogger(prefix)
}

// Discard returns an entry that drops everything, for tests.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func resolveLevel(cfg Config) (logrus.Level, error) {
	if value := strings.TrimSpace(cfg.Level); value != "" {
		level, err := logrus.ParseLevel(value)
		if err != nil {
			return logrus.InfoLevel, errors.Wrapf(err, "parse log level %q", value)
		}
		return level, nil
	}

	switch {
	case cfg.Verbosity <= 0:
		return logrus.InfoLevel, nil
	case cfg.Verbosity == 1:
		return logrus.DebugLevel, nil
	default:
		return logrus.TraceLevel, nil
	}
}

func newFormatter() logrus.Formatter {
	return &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceFormatting: true,
	}
}
