package settings

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ValentinKolb/dPrefs/cmd/util"
	"github.com/ValentinKolb/dPrefs/lib/common"
	"github.com/ValentinKolb/dPrefs/lib/prefs"
	"github.com/spf13/cobra"
)

const perfKeyPrefix = "__perf"

var (
	perfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Measures commit, write and read performance of the namespace",
		Long: `Measures commit, write and read performance of the namespace. All
benchmarks use keys prefixed with __perf, which are removed afterward.`,
		Args: cobra.NoArgs,
		RunE: withNamespace(runPerf),
	}
)

// perfBenchmark is one named benchmark of the perf command
type perfBenchmark struct {
	name string
	fn   func(b *testing.B, h *prefs.Holder, keys []string)
}

var perfBenchmarks = []perfBenchmark{
	{"commit", benchCommit},
	{"set", benchSet},
	{"get", benchGet},
	{"roundtrip", benchRoundTrip},
}

func init() {
	key := "skip"
	perfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. commit,get)"))
	key = "threads"
	perfCmd.Flags().Int(key, 4, util.WrapString("Number of goroutines to use for the benchmark"))
	key = "keys"
	perfCmd.Flags().Int(key, 100, util.WrapString("How many different keys to use for the tests"))
	key = "csv"
	perfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func runPerf(cmd *cobra.Command, _ []string, conf *common.Config, h *prefs.Holder) error {
	skipList, _ := cmd.Flags().GetString("skip")
	threads, _ := cmd.Flags().GetInt("threads")
	keyCount, _ := cmd.Flags().GetInt("keys")
	csvPath, _ := cmd.Flags().GetString("csv")
	if keyCount < 1 || threads < 1 {
		return fmt.Errorf("--keys and --threads must be positive")
	}

	skip := make(map[string]bool)
	for _, s := range strings.Split(skipList, ",") {
		skip[strings.TrimSpace(s)] = true
	}

	fmt.Println("Performance testing tool for dPrefs namespaces")
	fmt.Print(conf.String())
	fmt.Printf("\nThreads: %d, Keys: %d\n\n", threads, keyCount)

	defer removePerfKeys(h)

	results := make(map[string]testing.BenchmarkResult)
	for i, bench := range perfBenchmarks {
		if skip[bench.name] {
			printResult(bench.name, testing.BenchmarkResult{})
			continue
		}

		// every benchmark gets its own keys, a holder declares each key once
		keys := make([]string, keyCount)
		for k := range keys {
			keys[k] = fmt.Sprintf("%s-%d-%s-%d", perfKeyPrefix, i, bench.name, k)
		}

		fn := bench.fn
		result := testing.Benchmark(func(b *testing.B) {
			b.SetParallelism(threads)
			fn(b, h, keys)
		})
		results[bench.name] = result
		printResult(bench.name, result)
	}

	if csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, results, conf, threads, keyCount); err != nil {
			return fmt.Errorf("failed to export results to CSV: %w", err)
		}
		fmt.Println("Export complete")
	}
	return nil
}

// --------------------------------------------------------------------------
// Benchmarks
// --------------------------------------------------------------------------

// benchCommit measures blocking commits straight to the store
func benchCommit(b *testing.B, h *prefs.Holder, keys []string) {
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			if err := h.Store().Edit().PutInt(keys[counter%len(keys)], int32(counter)).Commit(); err != nil {
				log.Errorf("(commit) - error committing key: %v", err)
			}
			counter++
		}
	})
}

// benchSet measures fire-and-forget writes including the final flush
func benchSet(b *testing.B, h *prefs.Holder, keys []string) {
	props := declareInts(b, h, keys)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			props[counter%len(props)].Set(int32(counter))
			counter++
		}
	})
	flushPerf(b, h)
}

// benchGet measures reads of subscribed properties
func benchGet(b *testing.B, h *prefs.Holder, keys []string) {
	props := declareInts(b, h, keys)
	for _, p := range props {
		p.Get(true)
	}
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			_ = props[counter%len(props)].Get(true)
			counter++
		}
	})
}

// benchRoundTrip measures a write until its value is visible in the cell. It
// runs on a single goroutine, concurrent writers to one key would race.
func benchRoundTrip(b *testing.B, h *prefs.Holder, keys []string) {
	props := declareInts(b, h, keys)
	for _, p := range props {
		p.Get(true)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p := props[i%len(props)]
		v := p.Get(true) + 1
		if err := p.Set(v).Wait(context.Background()); err != nil {
			b.Fatalf("(roundtrip) - error setting key: %v", err)
		}
		for p.Get(true) != v {
			time.Sleep(10 * time.Microsecond)
		}
	}
}

// declareInts declares the int properties of a benchmark. testing.Benchmark
// calls the benchmark function several times, so declarations are cached.
func declareInts(b *testing.B, h *prefs.Holder, keys []string) []*prefs.Property[int32] {
	if props, ok := declared[keys[0]]; ok {
		return props
	}
	props := make([]*prefs.Property[int32], len(keys))
	for i, key := range keys {
		p, err := prefs.Int(h, key, 0)
		if err != nil {
			b.Fatalf("declare %s: %v", key, err)
		}
		props[i] = p
	}
	declared[keys[0]] = props
	return props
}

var declared = make(map[string][]*prefs.Property[int32])

func flushPerf(b *testing.B, h *prefs.Holder) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := h.Flush(ctx); err != nil {
		b.Errorf("flush: %v", err)
	}
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// removePerfKeys deletes every key written by the benchmarks in one commit
func removePerfKeys(h *prefs.Holder) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := h.Flush(ctx); err != nil {
		log.Warningf("pending benchmark writes failed: %v", err)
	}

	e := h.Store().Edit()
	for _, key := range h.Store().Keys() {
		if strings.HasPrefix(key, perfKeyPrefix) {
			e.Remove(key)
		}
	}
	if err := e.Commit(); err != nil {
		log.Errorf("cleanup of benchmark keys failed: %v", err)
	}
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-20sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-20s%.0fns/op (%s/op)\t%.0f ops/sec\n", test, nsPerOp, time.Duration(nsPerOp), opsPerSec)
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, results map[string]testing.BenchmarkResult, conf *common.Config, threads, keys int) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec",
		"Engine", "SyncWrites", "MaxInFlight", "Threads", "Keys",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, bench := range perfBenchmarks {
		result, ok := results[bench.name]
		if !ok {
			continue
		}
		nsPerOp := math.Max(float64(result.NsPerOp()), 1)
		row := []string{
			bench.name,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", 1.0/(nsPerOp/1e9)),
			string(conf.Engine),
			strconv.FormatBool(conf.SyncWrites),
			strconv.FormatInt(conf.MaxInFlight, 10),
			strconv.Itoa(threads),
			strconv.Itoa(keys),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %w", bench.name, err)
		}
	}
	return writer.Error()
}
