package docs

import (
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ValentinKolb/dDoc/cmd/util"
	"github.com/ValentinKolb/dDoc/lib/document"
	"github.com/ValentinKolb/dDoc/lib/query"
	"github.com/ValentinKolb/dDoc/lib/store"
	"github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	perfTestCmd = &cobra.Command{
		Use:   "perf [collection]",
		Short: "Performance testing tool for dDoc servers",
		Long: `Runs every phase (insert, find-one, update, count, find, delete) with the
configured number of threads and prints latency percentiles per phase. All
documents written by the test are deleted again by the delete phase.`,
		Args:    cobra.ExactArgs(1),
		RunE:    runPerf,
		PreRunE: processPerfConfig,
	}
	perfIDPrefix    = "__perf"
	perfPayloadSize = 256
	perfNumThreads  = 10
	perfOpsPerPhase = 1000
	perfSkip        = make([]string, 0)

	perfPhases = []string{"insert", "find-one", "update", "count", "find", "delete"}
)

func init() {
	key := "skip"
	perfTestCmd.Flags().String(key, "", util.WrapString("Phases to skip (comma separated - e.g. count,find)"))
	key = "threads"
	perfTestCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent clients"))
	key = "ops"
	perfTestCmd.Flags().Int(key, 1000, util.WrapString("Operations per phase (spread over all threads)"))
	key = "payload-size"
	perfTestCmd.Flags().Int(key, 256, util.WrapString("Size of the payload field of every document (in bytes)"))
	key = "csv"
	perfTestCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	perfPayloadSize = max(0, viper.GetInt("payload-size"))
	perfOpsPerPhase = max(1, viper.GetInt("ops"))
	perfNumThreads = max(1, viper.GetInt("threads"))
	perfSkip = strings.Split(viper.GetString("skip"), ",")

	return nil
}

func runPerf(_ *cobra.Command, args []string) error {
	c, err := collection(args[0])
	if err != nil {
		return err
	}

	fmt.Println("Performance testing tool for dDoc servers")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(util.GetClientConfig().String())
	fmt.Printf("Collection: %s, Threads: %d, Ops per phase: %d, Payload: %d bytes\n", c.Name(), perfNumThreads, perfOpsPerPhase, perfPayloadSize)
	fmt.Println()

	registry := metrics.NewRegistry()
	run := fmt.Sprintf("%s-%d", perfIDPrefix, time.Now().UnixNano())
	payload := document.String(strings.Repeat("x", perfPayloadSize))
	id := func(i int) string { return fmt.Sprintf("%s-%08d", run, i) }

	ops := map[string]func(ctx context.Context, i int) error{
		"insert": func(ctx context.Context, i int) error {
			_, err := c.InsertOne(ctx, document.Document{
				"_id":     document.String(id(i)),
				"run":     document.String(run),
				"n":       document.Int(i),
				"payload": payload,
			})
			return err
		},
		"find-one": func(ctx context.Context, i int) error {
			_, _, err := c.FindOne(ctx, query.ByID(id(i)))
			return err
		},
		"update": func(ctx context.Context, i int) error {
			_, err := c.UpdateOne(ctx, query.ByID(id(i)), store.Update{Set: document.Document{"touched": document.Bool(true)}})
			return err
		},
		"count": func(ctx context.Context, _ int) error {
			_, err := c.CountDocuments(ctx, query.Filter{query.Eq("run", document.String(run))})
			return err
		},
		"find": func(ctx context.Context, i int) error {
			_, err := c.Find(ctx, query.ByID(id(i)))
			return err
		},
		"delete": func(ctx context.Context, i int) error {
			_, err := c.DeleteOne(ctx, query.ByID(id(i)))
			return err
		},
	}

	fmt.Println("starting tests...")
	for _, phase := range perfPhases {
		if slices.Contains(perfSkip, phase) {
			printResult(phase, nil, 0)
			continue
		}
		timer := metrics.GetOrRegisterTimer(phase, registry)
		errors := metrics.GetOrRegisterCounter(phase+".errors", registry)
		runPhase(phase, ops[phase], timer, errors)
		printResult(phase, timer.Snapshot(), errors.Count())
	}

	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, registry); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// runPhase runs perfOpsPerPhase operations spread over perfNumThreads goroutines
func runPhase(phase string, op func(ctx context.Context, i int) error, timer metrics.Timer, errors metrics.Counter) {
	var wg sync.WaitGroup
	for t := 0; t < perfNumThreads; t++ {
		wg.Add(1)
		go func(t int) {
			defer wg.Done()
			ctx := context.Background()
			for i := t; i < perfOpsPerPhase; i += perfNumThreads {
				start := time.Now()
				err := op(ctx, i)
				timer.UpdateSince(start)
				if err != nil {
					errors.Inc(1)
					log.Printf("(%s) - error: %v\n", phase, err)
				}
			}
		}(t)
	}
	wg.Wait()
}

// printResult prints the result of a phase in a formatted way
func printResult(phase string, s metrics.Timer, errors int64) {
	if s == nil || s.Count() == 0 {
		fmt.Printf("%-12sskipped\n", phase)
		return
	}
	p := s.Percentiles([]float64{0.5, 0.95, 0.99})
	fmt.Printf("%-12s%6d ops  mean %-10s p50 %-10s p95 %-10s p99 %-10s %.0f ops/sec  errors %d\n",
		phase, s.Count(),
		time.Duration(s.Mean()).Round(time.Microsecond),
		time.Duration(p[0]).Round(time.Microsecond),
		time.Duration(p[1]).Round(time.Microsecond),
		time.Duration(p[2]).Round(time.Microsecond),
		s.RateMean(), errors)
}

// writeResultsToCSV writes the timers of all phases to a CSV file
func writeResultsToCSV(csvPath string, registry metrics.Registry) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	config := util.GetClientConfig()
	header := []string{
		"Phase", "Count", "Errors", "MeanNs", "P50Ns", "P95Ns", "P99Ns", "OpsPerSec",
		"Endpoints", "Serializer", "Threads", "PayloadBytes",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, phase := range perfPhases {
		timer, ok := registry.Get(phase).(metrics.Timer)
		if !ok {
			continue
		}
		var errCount int64
		if c, ok := registry.Get(phase + ".errors").(metrics.Counter); ok {
			errCount = c.Count()
		}
		s := timer.Snapshot()
		p := s.Percentiles([]float64{0.5, 0.95, 0.99})
		row := []string{
			phase,
			strconv.FormatInt(s.Count(), 10),
			strconv.FormatInt(errCount, 10),
			fmt.Sprintf("%.0f", s.Mean()),
			fmt.Sprintf("%.0f", p[0]),
			fmt.Sprintf("%.0f", p[1]),
			fmt.Sprintf("%.0f", p[2]),
			fmt.Sprintf("%.0f", s.RateMean()),
			strings.Join(config.Endpoints, ";"),
			viper.GetString("serializer"),
			strconv.Itoa(perfNumThreads),
			strconv.Itoa(perfPayloadSize),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for phase %s: %v", phase, err)
		}
	}

	return nil
}
