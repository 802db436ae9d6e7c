package logging

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaveworks/promrus"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	FormatText = "text"
	FormatJson = "json"
)

var validLogFormats = map[string]bool{
	FormatText: true,
	FormatJson: true,
}

// Config defines console logging configuration.
type Config struct {
	// Log level, e.g. info, debug etc.
	Level string
	// Logging format, either text or json.
	Format string
}

// NullLogger discards everything written to it. Useful as a default in tests.
var NullLogger = &log.Logger{
	Out:       io.Discard,
	Formatter: new(log.TextFormatter),
	Hooks:     make(log.LevelHooks),
	Level:     log.PanicLevel,
}

// NullEntry returns an entry backed by NullLogger.
func NullEntry() *log.Entry {
	return log.NewEntry(NullLogger)
}

// ConfigureCliLogging sets up the standard logger for interactive command line use.
func ConfigureCliLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// Configure applies the given config to the standard logger.
func Configure(config Config) error {
	return ConfigureLogger(log.StandardLogger(), config)
}

// ConfigureLogger applies level and format to an arbitrary logger.
func ConfigureLogger(logger *log.Logger, config Config) error {
	if err := validate(config); err != nil {
		return err
	}
	level, err := log.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return errors.WithStack(err)
	}
	logger.SetLevel(level)
	switch config.Format {
	case FormatJson:
		logger.SetFormatter(&log.JSONFormatter{})
	default:
		logger.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: true})
	}
	return nil
}

// AddPrometheusHook exports counts of log lines per level via the default prometheus registry.
// It may only be called once per process as the underlying counter is registered globally.
func AddPrometheusHook(logger *log.Logger) error {
	hook, err := promrus.NewPrometheusHook()
	if err != nil {
		return errors.Wrap(err, "registering prometheus log hook")
	}
	logger.AddHook(hook)
	return nil
}

func validate(c Config) error {
	if _, err := log.ParseLevel(strings.ToLower(c.Level)); err != nil {
		return errors.Errorf("unknown log level: %s", c.Level)
	}
	if !validLogFormats[c.Format] {
		formats := maps.Keys(validLogFormats)
		slices.Sort(formats)
		return errors.Errorf("unknown log format: %s.  Valid formats are %s", c.Format, formats)
	}
	return nil
}
