// Package cmd implements the command-line interface of dPrefs. It provides
// commands to inspect and edit a preference namespace on disk.
//
// The package is organized into several subpackages:
//
//   - settings: Commands operating on one namespace (get, set, del, list, watch, export, stats, perf)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dprefs -help for a list of all commands.
package cmd
