// Package prefs exposes the keys of a persistent preference namespace as
// typed reactive properties.
//
// A Holder is an opened namespace. Properties are declared on it with one
// factory per type (Bool, String, Int, Float, Long, Enum, StringSet, or
// Declare with a custom Codec). Each key may be declared once per holder.
//
// Reads come from an in-memory reactive cell. The first read from a writable
// context seeds the cell from the store and subscribes to store changes;
// reads from a read-only context never subscribe. Set hands the write to the
// Scheduler and returns at once. The cell is updated only by the store's
// change notification, and only if the decoded value differs from the cell
// and the current snapshot is writable, so a property's own writes do not
// cause redundant updates.
//
// Writes run on a Scheduler (DefaultScheduler unless configured). Waiting
// for the returned Task, Holder.Flush or Scheduler.Flush is optional.
//
// Usage Example:
//
//	env, err := prefs.NewEnvironment(&conf)
//	if err != nil {
//		return err
//	}
//	defer env.Close()
//
//	h, err := prefs.Open(env, "settings", 0o600)
//	if err != nil {
//		return err
//	}
//	defer h.Close()
//
//	darkMode := prefs.Must(prefs.Bool(h, "dark_mode", false))
//	fontSize := prefs.Must(prefs.Int(h, "font_size", 12))
//
//	fmt.Println(darkMode.Value(h.Runtime().Current()), fontSize.Get(true))
//	darkMode.Set(true)
package prefs
