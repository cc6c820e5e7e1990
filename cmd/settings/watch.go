package settings

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/ValentinKolb/dPrefs/lib/prefs"
	"github.com/ValentinKolb/dPrefs/lib/store"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Prints every change of the namespace until interrupted",
	Long: `Prints every change of the namespace until interrupted. Changes made
by other processes are picked up when the namespace file is rewritten, which
requires the maple engine and --watch (the default).`,
	Args: cobra.NoArgs,
	RunE: withNamespace(func(cmd *cobra.Command, _ []string, conf *common.Config, h *prefs.Holder) error {
		if !conf.Watch || conf.Engine != common.EngineMaple {
			log.Warningf("changes of other processes are only seen with --watch and the maple engine")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		handle := h.Subscribe(func(s store.IStore, c store.Change) {
			ts := time.Now().Format(time.TimeOnly)
			if c.Cleared {
				fmt.Printf("%s  * namespace cleared\n", ts)
				return
			}
			v, ok := s.All()[c.Key]
			if !ok {
				fmt.Printf("%s  - %s\n", ts, c.Key)
				return
			}
			fmt.Printf("%s  ~ %s (%s) = %s\n", ts, c.Key, typeName(v), formatValue(v))
		})
		defer h.Unsubscribe(handle)

		fmt.Printf("watching namespace %q, press Ctrl+C to stop\n", h.Name())
		<-ctx.Done()
		return nil
	}),
}
