package settings

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ValentinKolb/dPrefs/cmd/util"
	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/ValentinKolb/dPrefs/lib/prefs"
	"github.com/ValentinKolb/dPrefs/lib/store/lstore"
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	exportCmd = &cobra.Command{
		Use:   "export",
		Short: "Writes all keys of the namespace as JSON or YAML",
		Args:  cobra.NoArgs,
		RunE: withNamespace(func(cmd *cobra.Command, _ []string, _ *common.Config, h *prefs.Holder) error {
			format, _ := cmd.Flags().GetString("format")
			path, _ := cmd.Flags().GetString("output")

			var w io.Writer = os.Stdout
			if path != "" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return export(w, format, h.Store().All())
		}),
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints configuration, engine information and metrics",
		Args:  cobra.NoArgs,
		RunE: withNamespace(func(cmd *cobra.Command, _ []string, conf *common.Config, h *prefs.Holder) error {
			fmt.Print(conf.String())

			fmt.Println("\nENGINE")
			if info, ok := lstore.Info(h.Store()); ok {
				features := make([]string, 0, len(info.SupportedFeatures))
				for _, f := range info.SupportedFeatures {
					features = append(features, f.String())
				}
				fmt.Printf("  %-22s: %s\n", "Type", info.DbType)
				fmt.Printf("  %-22s: %d\n", "Entries", info.Entries)
				fmt.Printf("  %-22s: %d\n", "Size (bytes)", info.SizeBytes)
				fmt.Printf("  %-22s: %s\n", "Features", strings.Join(features, ", "))
				if path := lstore.Path(h.Store()); path != "" {
					fmt.Printf("  %-22s: %s\n", "File", path)
				}
			}

			fmt.Println("\nSTORE METRICS")
			if r := lstore.Metrics(h.Store()); r != nil {
				gometrics.WriteOnce(r, os.Stdout)
			}

			fmt.Println("\nSCHEDULER METRICS")
			metrics.WritePrometheus(os.Stdout, false)
			return nil
		}),
	}
)

func init() {
	exportCmd.Flags().String("format", "json", util.WrapString("Output format (json, yaml)"))
	exportCmd.Flags().StringP("output", "o", "", util.WrapString("File to write to instead of stdout"))
}

// export writes values in the given format
func export(w io.Writer, format string, values map[string]any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(values); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown format %q (json, yaml)", format)
	}
}
