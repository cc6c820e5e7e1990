package common

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
)

// --------------------------------------------------------------------------
// Engine selection
// --------------------------------------------------------------------------

type EngineType string

const (
	EngineMaple  EngineType = "maple"
	EngineBadger EngineType = "badger"
)

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// Config holds the parameters needed to open preference namespaces and run
// the write scheduler.
type Config struct {
	// Dir is the directory holding all namespaces
	Dir string `validate:"required"`
	// Namespace is the name of the opened namespace (file or directory name)
	Namespace string `validate:"required,excludesall=/\\"`
	// Engine backing the namespace
	Engine EngineType `validate:"oneof=maple badger"`
	// Mode is the permission of files created for a namespace
	Mode os.FileMode `validate:"required"`
	// Watch reloads the namespace when another process rewrites it (maple only)
	Watch bool
	// SyncWrites fsyncs every badger transaction
	SyncWrites bool
	// MaxInFlight limits how many commits the write scheduler runs at once
	MaxInFlight int64 `validate:"min=1"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `validate:"oneof=debug info warn warning error"`
}

// DefaultConfig returns a configuration for a private maple namespace
func DefaultConfig() Config {
	return Config{
		Dir:         "prefs",
		Namespace:   "default",
		Engine:      EngineMaple,
		Mode:        0o600,
		Watch:       true,
		SyncWrites:  true,
		MaxInFlight: 16,
		LogLevel:    "info",
	}
}

var validate = validator.New()

// Validate checks the configuration for missing or invalid values
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Namespace")
	addField("Directory", c.Dir)
	addField("Name", c.Namespace)
	addField("Engine", string(c.Engine))
	addField("Mode", c.Mode.String())
	addField("Watch", fmt.Sprintf("%t", c.Watch))
	addField("Sync Writes", fmt.Sprintf("%t", c.SyncWrites))

	addSection("Write Scheduler")
	addField("Max In Flight", fmt.Sprintf("%d", c.MaxInFlight))

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
