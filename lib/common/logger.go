package common

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/lni/dragonboat/v4/logger"
)

// Names of the loggers used in this module
var loggerNames = []string{"prefs", "store", "scheduler", "badger", "cli"}

// --------------------------------------------------------------------------
// Custom Logger (implements dragonboats logger.ILogger)
// --------------------------------------------------------------------------

// prefsLogger implements the ILogger interface with custom formatting
type prefsLogger struct {
	name   string
	level  logger.LogLevel
	logger *log.Logger
}

func (l *prefsLogger) SetLevel(level logger.LogLevel) {
	l.level = level
}

func (l *prefsLogger) Debugf(format string, args ...interface{}) {
	if l.level >= logger.DEBUG {
		l.log("DEBUG", format, args...)
	}
}

func (l *prefsLogger) Infof(format string, args ...interface{}) {
	if l.level >= logger.INFO {
		l.log("INFO", format, args...)
	}
}

func (l *prefsLogger) Warningf(format string, args ...interface{}) {
	if l.level >= logger.WARNING {
		l.log("WARN", format, args...)
	}
}

func (l *prefsLogger) Errorf(format string, args ...interface{}) {
	if l.level >= logger.ERROR {
		l.log("ERROR", format, args...)
	}
}

func (l *prefsLogger) Panicf(format string, args ...interface{}) {
	panic(fmt.Sprintf(format, args...))
}

func (l *prefsLogger) log(levelStr string, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-10s | %s", levelStr, l.name, message)
}

// --------------------------------------------------------------------------
// Logger Factory
// --------------------------------------------------------------------------

// output is where all loggers created by CreateLogger write to
var output io.Writer = os.Stderr

// CreateLogger creates a logger for a package. It is installed as
// dragonboat's logger factory by InitLoggers.
func CreateLogger(pkgName string) logger.ILogger {
	return &prefsLogger{
		name:   pkgName,
		level:  logger.INFO,
		logger: log.New(output, "", log.Ldate|log.Ltime),
	}
}

// ParseLogLevel converts a string level to logger.LogLevel
func ParseLogLevel(level string) (logger.LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logger.DEBUG, nil
	case "info":
		return logger.INFO, nil
	case "warning", "warn":
		return logger.WARNING, nil
	case "error":
		return logger.ERROR, nil
	default:
		return logger.INFO, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Logger initialization
// --------------------------------------------------------------------------

// InitLoggers installs the custom logger factory and sets the level of all
// loggers of this module. w replaces the output writer when not nil.
func InitLoggers(level string, w io.Writer) error {
	lvl, err := ParseLogLevel(level)
	if err != nil {
		return err
	}
	if w != nil {
		output = w
	}

	logger.SetLoggerFactory(CreateLogger)
	for _, name := range loggerNames {
		logger.GetLogger(name).SetLevel(lvl)
	}
	return nil
}
