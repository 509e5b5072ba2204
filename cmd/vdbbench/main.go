package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	vdbbench "github.com/Uyyuu/VectorDBBench"
	"github.com/Uyyuu/VectorDBBench/api"
	"github.com/Uyyuu/VectorDBBench/dataset"
	"github.com/Uyyuu/VectorDBBench/metrics"
	"github.com/Uyyuu/VectorDBBench/tidb"
)

var (
	logger  *zap.Logger
	cfgFile string
	verbose bool

	datasetPath string
	queriesPath string
	dim         int
	runTopK     int
	searchTopK  int
	numQueries  int
	runDropOld  bool
	loadDropOld bool
	statusPort  string
)

const version = "0.2.0"

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")

	rootCmd.PersistentFlags().String("host", "localhost", "TiDB host")
	rootCmd.PersistentFlags().Int("port", 4000, "TiDB port")
	rootCmd.PersistentFlags().String("user", "root", "TiDB user")
	rootCmd.PersistentFlags().String("password", "", "TiDB password")
	rootCmd.PersistentFlags().String("database", "test", "TiDB database")
	rootCmd.PersistentFlags().String("table", "vector_bench_test", "Benchmark table name")
	rootCmd.PersistentFlags().String("metric", "COSINE", "Distance metric: L2, IP or COSINE")
	rootCmd.PersistentFlags().Int("workers", 10, "Concurrent insert workers")

	for _, flag := range []string{"host", "port", "user", "password", "database", "table", "metric", "workers"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to bind flag %s: %v\n", flag, err)
			os.Exit(1)
		}
	}

	runCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Dataset file (.json, .ndjson or .csv)")
	runCmd.Flags().StringVarP(&queriesPath, "queries", "q", "", "Query file; defaults to sampling the dataset")
	runCmd.Flags().IntVar(&dim, "dim", 0, "Vector dimension (defaults to the first record's length)")
	runCmd.Flags().IntVarP(&runTopK, "topk", "k", 100, "Result limit per search")
	runCmd.Flags().IntVar(&numQueries, "num-queries", 100, "Queries sampled from the dataset when --queries is unset")
	runCmd.Flags().BoolVar(&runDropOld, "drop-old", true, "Drop and recreate the table before loading")
	runCmd.Flags().StringVar(&statusPort, "status-port", "", "Expose /health, /stats and /metrics on this port during the run")

	loadCmd.Flags().StringVarP(&datasetPath, "dataset", "d", "", "Dataset file (.json, .ndjson or .csv)")
	loadCmd.Flags().IntVar(&dim, "dim", 0, "Vector dimension (defaults to the first record's length)")
	loadCmd.Flags().BoolVar(&loadDropOld, "drop-old", false, "Drop and recreate the table before loading")

	searchCmd.Flags().IntVarP(&searchTopK, "topk", "k", 10, "Result limit")
	searchCmd.Flags().IntVar(&dim, "dim", 0, "Vector dimension of the table")

	dropCmd.Flags().IntVar(&dim, "dim", 0, "Vector dimension of the table")
	optimizeCmd.Flags().IntVar(&dim, "dim", 0, "Vector dimension of the table")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(loadCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(dropCmd)
	rootCmd.AddCommand(versionCmd)
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "vdbbench",
	Short: "vdbbench benchmarks vector search on SQL databases",
	Long: `vdbbench drives a TiDB cluster through a full vector benchmark
lifecycle: create schema, bulk-load vectors, build the HNSW vector
index on the TiFlash replica, and run nearest-neighbor queries
scored for recall and latency.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full benchmark lifecycle: load, optimize, search",
	RunE:  runBenchmark,
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Bulk-load a dataset into the benchmark table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()
		records, d, err := readDataset()
		if err != nil {
			return err
		}
		client, err := newClient(ctx, d, nil, loadDropOld)
		if err != nil {
			return err
		}
		defer client.Close()

		runner := vdbbench.NewRunner(client, vdbbench.RunnerConfig{SkipOptimize: true}, logger, nil)
		start := time.Now()
		n, err := runner.Load(ctx, records)
		if err != nil {
			return err
		}
		fmt.Printf("Loaded %d vectors in %s\n", n, time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Rebuild the vector index and wait for the TiFlash replica to catch up",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()
		client, err := newClient(ctx, dim, nil, false)
		if err != nil {
			return err
		}
		defer client.Close()
		return client.Optimize(ctx)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search [vector-json]",
	Short: "Run a single nearest-neighbor query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()
		var query []float32
		if err := sonic.UnmarshalString(args[0], &query); err != nil {
			return fmt.Errorf("parse query vector: %w", err)
		}
		d := dim
		if d == 0 {
			d = len(query)
		}
		client, err := newClient(ctx, d, nil, false)
		if err != nil {
			return err
		}
		defer client.Close()

		release, err := client.Init(ctx)
		if err != nil {
			return err
		}
		defer release()

		start := time.Now()
		ids, err := client.SearchEmbedding(ctx, query, searchTopK, nil)
		if err != nil {
			return err
		}
		latency := time.Since(start)

		table := tablewriter.NewWriter(os.Stdout)
		table.SetHeader([]string{"Rank", "ID"})
		table.SetBorder(false)
		for i, id := range ids {
			table.Append([]string{strconv.Itoa(i + 1), strconv.FormatInt(int64(id), 10)})
		}
		table.Render()
		fmt.Printf("%d results in %s\n", len(ids), latency.Round(time.Microsecond))
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Drop the benchmark table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := signalContext()
		client, err := newClient(ctx, dim, nil, false)
		if err != nil {
			return err
		}
		defer client.Close()
		if err := client.DropTable(ctx); err != nil {
			return err
		}
		fmt.Printf("Dropped table %s\n", viper.GetString("table"))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("vdbbench v%s\n", version)
	},
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	ctx := signalContext()

	records, d, err := readDataset()
	if err != nil {
		return err
	}

	var queries [][]float32
	if queriesPath != "" {
		queryRecords, err := dataset.LoadFile(queriesPath, logger)
		if err != nil {
			return err
		}
		queries = dataset.Queries(queryRecords)
	} else {
		n := numQueries
		if n > len(records) {
			n = len(records)
		}
		queries = dataset.Queries(records[:n])
	}

	collector := metrics.NewCollector()
	if statusPort != "" {
		server := api.NewServer(collector, logger)
		go func() {
			if err := server.Start(statusPort); err != nil {
				logger.Error("status server stopped", zap.Error(err))
			}
		}()
		defer func() {
			if err := server.Shutdown(); err != nil {
				logger.Warn("status server shutdown failed", zap.Error(err))
			}
		}()
	}

	client, err := newClient(ctx, d, collector, runDropOld)
	if err != nil {
		return err
	}
	defer client.Close()

	metric, err := vdbbench.ParseMetricType(viper.GetString("metric"))
	if err != nil {
		return err
	}
	runner := vdbbench.NewRunner(client, vdbbench.RunnerConfig{
		TopK:   runTopK,
		Metric: metric,
	}, logger, collector)

	result, err := runner.Run(ctx, records, queries)
	if err != nil {
		return err
	}
	printResult(result)
	return nil
}

// readDataset loads the dataset file and resolves the vector dimension.
func readDataset() ([]vdbbench.Record, int, error) {
	if datasetPath == "" {
		return nil, 0, fmt.Errorf("--dataset is required")
	}
	records, err := dataset.LoadFile(datasetPath, logger)
	if err != nil {
		return nil, 0, err
	}
	if len(records) == 0 {
		return nil, 0, fmt.Errorf("dataset %s contains no records", datasetPath)
	}
	d := dim
	if d == 0 {
		d = len(records[0].Vector)
	}
	if err := dataset.ValidateDimension(records, d); err != nil {
		return nil, 0, err
	}
	return records, d, nil
}

// newClient builds the TiDB adapter from viper-resolved settings.
func newClient(ctx context.Context, d int, collector *metrics.Collector, dropOld bool) (*tidb.Client, error) {
	metric, err := vdbbench.ParseMetricType(viper.GetString("metric"))
	if err != nil {
		return nil, err
	}
	cfg := tidb.Config{
		Host:              viper.GetString("host"),
		Port:              viper.GetInt("port"),
		User:              viper.GetString("user"),
		Password:          viper.GetString("password"),
		Database:          viper.GetString("database"),
		TableName:         viper.GetString("table"),
		Metric:            metric,
		DropOld:           dropOld,
		ConcurrentWorkers: viper.GetInt("workers"),
	}
	opts := []tidb.Option{tidb.WithLogger(logger)}
	if collector != nil {
		opts = append(opts, tidb.WithCollector(collector))
	}
	return tidb.New(ctx, d, cfg, opts...)
}

func printResult(result *vdbbench.Result) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetBorder(false)
	table.SetColumnSeparator(" | ")
	table.Append([]string{"Inserted", strconv.Itoa(result.Inserted)})
	table.Append([]string{"Load Duration", result.LoadDuration.Round(time.Millisecond).String()})
	table.Append([]string{"Optimize Duration", result.OptimizeDuration.Round(time.Millisecond).String()})
	table.Append([]string{"Queries", strconv.Itoa(result.Queries)})
	table.Append([]string{"Avg Latency", result.AvgLatency.Round(time.Microsecond).String()})
	table.Append([]string{"QPS", fmt.Sprintf("%.2f", result.QPS)})
	table.Append([]string{"Recall", fmt.Sprintf("%.4f", result.Recall)})
	table.Render()
}

// signalContext returns a context cancelled on SIGINT/SIGTERM.
func signalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("VDBBENCH")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if logger != nil {
			logger.Info("Using config file", zap.String("file", viper.ConfigFileUsed()))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if logger != nil {
		_ = logger.Sync()
	}
}
