package settings

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ValentinKolb/dPrefs/cmd/util"
	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/ValentinKolb/dPrefs/lib/prefs"
	"github.com/spf13/cobra"
)

const (
	typeAuto      = "auto"
	writeDeadline = 30 * time.Second
)

var (
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: withNamespace(func(cmd *cobra.Command, args []string, _ *common.Config, h *prefs.Holder) error {
			key := args[0]
			typ, _ := cmd.Flags().GetString("type")

			if typ == typeAuto {
				v, ok := h.Store().All()[key]
				if !ok {
					return fmt.Errorf("key %q not found in namespace %q", key, h.Name())
				}
				fmt.Printf("%s (%s) = %s\n", key, typeName(v), formatValue(v))
				return nil
			}

			v, err := readTyped(h, key, typ)
			if err != nil {
				return err
			}
			suffix := ""
			if !h.Store().Contains(key) {
				suffix = " (default)"
			}
			fmt.Printf("%s (%s) = %s%s\n", key, typ, formatValue(v), suffix)
			return nil
		}),
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Long: `Sets the value for a key. With --type auto the type of the stored
value is kept, new keys are stored as string. String sets are given comma
separated.`,
		Args: cobra.ExactArgs(2),
		RunE: withNamespace(func(cmd *cobra.Command, args []string, _ *common.Config, h *prefs.Holder) error {
			key, raw := args[0], args[1]
			typ, _ := cmd.Flags().GetString("type")

			if typ == typeAuto {
				typ = "string"
				if v, ok := h.Store().All()[key]; ok {
					typ = typeName(v)
				}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), writeDeadline)
			defer cancel()

			task, err := writeTyped(h, key, typ, raw)
			if err != nil {
				return err
			}
			if err := task.Wait(ctx); err != nil {
				return err
			}
			if err := h.Flush(ctx); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		}),
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key",
		Args:  cobra.ExactArgs(1),
		RunE: withNamespace(func(cmd *cobra.Command, args []string, _ *common.Config, h *prefs.Holder) error {
			key := args[0]
			if !h.Store().Contains(key) {
				fmt.Printf("key=%s, found=false\n", key)
				return nil
			}
			if err := h.Store().Edit().Remove(key).Commit(); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		}),
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all keys of the namespace",
		Args:  cobra.NoArgs,
		RunE: withNamespace(func(cmd *cobra.Command, _ []string, _ *common.Config, h *prefs.Holder) error {
			all := h.Store().All()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tTYPE\tVALUE")
			for _, key := range sortedKeys(all) {
				fmt.Fprintf(w, "%s\t%s\t%s\n", key, typeName(all[key]), formatValue(all[key]))
			}
			return w.Flush()
		}),
	}
)

func init() {
	key := "type"
	getCmd.Flags().String(key, typeAuto, util.WrapString("Type to read the key as (auto, bool, string, int, float, long, stringset). A missing or mistyped key yields the zero value of the type"))
	setCmd.Flags().String(key, typeAuto, util.WrapString("Type to store the value as (auto, bool, string, int, float, long, stringset)"))
}

// readTyped reads key through a property of the given type, zero value as default
func readTyped(h *prefs.Holder, key, typ string) (any, error) {
	switch typ {
	case "bool":
		return get(prefs.Bool(h, key, false))
	case "string":
		return get(prefs.String(h, key, ""))
	case "int":
		return get(prefs.Int(h, key, 0))
	case "float":
		return get(prefs.Float(h, key, 0))
	case "long":
		return get(prefs.Long(h, key, 0))
	case "stringset":
		return get(prefs.StringSet(h, key, []string{}))
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

func get[T any](p *prefs.Property[T], err error) (any, error) {
	if err != nil {
		return nil, err
	}
	return p.Get(true), nil
}

// writeTyped parses raw as typ and sets it through a property
func writeTyped(h *prefs.Holder, key, typ, raw string) (*prefs.Task, error) {
	switch typ {
	case "bool":
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("value must be a bool: %w", err)
		}
		return set(prefs.Bool(h, key, false))(v)
	case "string":
		return set(prefs.String(h, key, ""))(raw)
	case "int":
		v, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("value must be a 32 bit integer: %w", err)
		}
		return set(prefs.Int(h, key, 0))(int32(v))
	case "float":
		v, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return nil, fmt.Errorf("value must be a float: %w", err)
		}
		return set(prefs.Float(h, key, 0))(float32(v))
	case "long":
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value must be a 64 bit integer: %w", err)
		}
		return set(prefs.Long(h, key, 0))(v)
	case "stringset":
		members := []string{}
		if raw != "" {
			members = strings.Split(raw, ",")
		}
		return set(prefs.StringSet(h, key, nil))(members)
	default:
		return nil, fmt.Errorf("unknown type %q", typ)
	}
}

// set returns a setter for a freshly declared property
func set[T any](p *prefs.Property[T], err error) func(T) (*prefs.Task, error) {
	return func(v T) (*prefs.Task, error) {
		if err != nil {
			return nil, err
		}
		return p.Set(v), nil
	}
}
