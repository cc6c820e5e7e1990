// Package reactive is a minimal reactive state layer: observable cells and
// snapshot scopes that are either writable or read-only.
//
// A Runtime keeps the current snapshot. Code rendering from state enters a
// snapshot with Runtime.Enter; anything that wants to mutate state first
// checks IsWritable on the current snapshot. Speculative read passes run in a
// read-only snapshot and must not cause side effects.
//
// Usage Example:
//
//	rt := reactive.NewRuntime()
//	c := reactive.NewCell(0)
//	cancel := c.Observe(func(v int) { fmt.Println("now", v) })
//	defer cancel()
//
//	rt.Enter(rt.Global().Nested(true), func() {
//		fmt.Println(rt.Writable()) // false
//	})
//	c.Set(1)
package reactive
