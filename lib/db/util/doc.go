// Package util provides small building blocks shared by the engines and the
// store layer.
//
// The package contains:
//   - functions: seed generation and the FNV-1a string hash used for sharding
//   - lockfreempsc: a lock-free Multi-Producer Single-Consumer (MPSC) queue. The
//     local store uses it to hand change notifications from committing goroutines
//     to the single goroutine that delivers them to listeners, in commit order.
package util
