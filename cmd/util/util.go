package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupNamespaceFlags adds the flags selecting and configuring a namespace
func SetupNamespaceFlags(cmd *cobra.Command) {
	def := common.DefaultConfig()

	key := "dir"
	cmd.PersistentFlags().String(key, def.Dir, WrapString("Directory holding all namespaces"))

	key = "namespace"
	cmd.PersistentFlags().StringP(key, "n", def.Namespace, WrapString("Name of the namespace to operate on"))

	key = "engine"
	cmd.PersistentFlags().String(key, string(def.Engine), WrapString("Engine backing the namespace (maple, badger). maple keeps the namespace in memory and writes a snapshot file on every commit, badger is a durable on-disk database"))

	key = "mode"
	cmd.PersistentFlags().String(key, fmt.Sprintf("%#o", def.Mode), WrapString("Permission of files created for the namespace (octal)"))

	key = "watch"
	cmd.PersistentFlags().Bool(key, def.Watch, WrapString("Reload the namespace when another process rewrites it (maple only)"))

	key = "sync-writes"
	cmd.PersistentFlags().Bool(key, def.SyncWrites, WrapString("Fsync every badger transaction"))

	key = "max-in-flight"
	cmd.PersistentFlags().Int64(key, def.MaxInFlight, WrapString("How many commits the write scheduler runs at once"))

	key = "log-level"
	cmd.PersistentFlags().String(key, def.LogLevel, WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dprefs")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the namespace configuration from viper and validates it
func GetConfig() (*common.Config, error) {
	mode, err := strconv.ParseUint(viper.GetString("mode"), 8, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid mode %q: %w", viper.GetString("mode"), err)
	}

	conf := &common.Config{
		Dir:         viper.GetString("dir"),
		Namespace:   viper.GetString("namespace"),
		Engine:      common.EngineType(viper.GetString("engine")),
		Mode:        os.FileMode(mode),
		Watch:       viper.GetBool("watch"),
		SyncWrites:  viper.GetBool("sync-writes"),
		MaxInFlight: viper.GetInt64("max-in-flight"),
		LogLevel:    viper.GetString("log-level"),
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
