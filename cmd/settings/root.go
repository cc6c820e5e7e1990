package settings

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ValentinKolb/dPrefs/cmd/util"
	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/ValentinKolb/dPrefs/lib/prefs"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var log = logger.GetLogger("cli")

// Commands returns all commands operating on a namespace
func Commands() []*cobra.Command {
	return []*cobra.Command{getCmd, setCmd, delCmd, listCmd, watchCmd, exportCmd, statsCmd, perfCmd}
}

// namespaceRunE is the RunE of a namespace command
type namespaceRunE func(cmd *cobra.Command, args []string, conf *common.Config, h *prefs.Holder) error

// withNamespace reads the configuration, opens the namespace and closes it
// again once fn returns
func withNamespace(fn namespaceRunE) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := util.BindCommandFlags(cmd); err != nil {
			return err
		}
		conf, err := util.GetConfig()
		if err != nil {
			return err
		}
		if err := common.InitLoggers(conf.LogLevel, os.Stderr); err != nil {
			return err
		}

		env, err := prefs.NewEnvironment(conf)
		if err != nil {
			return err
		}
		defer func() {
			if err := env.Close(); err != nil {
				log.Errorf("closing namespace failed: %v", err)
			}
		}()

		h, err := prefs.Open(env, conf.Namespace, conf.Mode)
		if err != nil {
			return err
		}
		defer h.Close()

		log.Debugf("using configuration:%s", conf)
		return fn(cmd, args, conf, h)
	}
}

// --------------------------------------------------------------------------
// Value formatting
// --------------------------------------------------------------------------

// typeName returns the preference type of a decoded value
func typeName(v any) string {
	switch v.(type) {
	case bool:
		return "bool"
	case string:
		return "string"
	case int32:
		return "int"
	case float32:
		return "float"
	case int64:
		return "long"
	case []string:
		return "stringset"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// formatValue prints string sets comma separated, the same way set parses them
func formatValue(v any) string {
	if set, ok := v.([]string); ok {
		return strings.Join(set, ",")
	}
	return fmt.Sprintf("%v", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
