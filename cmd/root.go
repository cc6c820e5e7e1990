package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dPrefs/cmd/settings"
	"github.com/ValentinKolb/dPrefs/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dprefs",
		Short: "typed, observable preference namespaces",
		Long: fmt.Sprintf(`dPrefs (v%s)

Inspect and edit persistent preference namespaces. Every namespace is a
typed key-value store (bool, string, int, float, long, string set) that
notifies observers of changes, including changes made by other processes.

Flags can also be set via environment variables of the form DPREFS_<flag>
(e.g. DPREFS_NAMESPACE=settings) or in a .env / .env.local file.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dPrefs",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dPrefs v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Flags
	util.SetupNamespaceFlags(RootCmd)

	// Add Commands
	RootCmd.AddCommand(settings.Commands()...)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
