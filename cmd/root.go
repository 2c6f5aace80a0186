package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/imp-sim/imp-sim/sim/metrics"
	"github.com/imp-sim/imp-sim/sim/report"
	"github.com/imp-sim/imp-sim/sim/scenario"
	"github.com/imp-sim/imp-sim/sim/supply"
	"github.com/imp-sim/imp-sim/sim/trace"
)

// Exit codes.
const (
	exitRuntimeError = 1
	exitConfigError  = 2
)

var (
	// Shared flags
	scenarioPath string  // Scenario YAML file
	logLevel     string  // Log verbosity level
	seed         int64   // Overrides the scenario seed when set
	horizonDays  float64 // Overrides the scenario horizon when positive

	// run outputs
	eventsOut   string // JSONL event stream
	sqliteOut   string // SQLite database
	xlsxOut     string // XLSX workbook
	chartLayout string // Workbook chart layout
	metricsOut  string // Prometheus textfile
	traceLevel  string // Overrides the scenario trace level when set
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:          "imp-sim",
	Short:        "Discrete-event simulator for clinical trial IMP supply chains",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// runCmd executes one simulation run and writes the requested outputs
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a trial supply scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		if chartLayout != "" && !report.IsValidChartLayout(chartLayout) {
			return &scenario.ConfigError{Field: "--chart-layout", Reason: fmt.Sprintf("unknown layout %q; valid: combined, separate", chartLayout)}
		}
		if !trace.IsValidLevel(traceLevel) {
			return &scenario.ConfigError{Field: "--trace-level", Reason: fmt.Sprintf("unknown level %q; valid: full, events", traceLevel)}
		}
		sc, err := scenario.Load(scenarioPath)
		if err != nil {
			return err
		}
		opts, err := runOptions(cmd, sc)
		if err != nil {
			return err
		}
		opts.TraceLevel = trace.Level(traceLevel)
		opts.RunID = uuid.NewString()

		var collector *metrics.Collector
		if metricsOut != "" {
			collector = metrics.NewCollector(opts.RunID, sc.Name)
			opts.Observers = append(opts.Observers, collector)
		}

		startTime := time.Now()
		s, err := supply.New(sc, opts)
		if err != nil {
			return err
		}
		res, err := s.Run()
		if err != nil {
			return err
		}
		logrus.Infof("Simulation of %s took %s", sc.Name, time.Since(startTime))

		if err := writeOutputs(cmd, res, collector); err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), renderResult(res))
		return err
	},
}

// runOptions applies the seed and horizon overrides shared by run and sweep.
func runOptions(cmd *cobra.Command, sc *scenario.Scenario) (supply.Options, error) {
	var opts supply.Options
	if cmd.Flags().Changed("seed") {
		s := seed
		opts.Seed = &s
	}
	if cmd.Flags().Changed("horizon-days") {
		ticks := sc.Ticks(horizonDays)
		if horizonDays <= 0 || ticks < 1 {
			return opts, &scenario.ConfigError{Field: "--horizon-days", Reason: fmt.Sprintf("must be at least one tick, got %g days", horizonDays)}
		}
		if err := sc.CheckSpan("--horizon-days", horizonDays); err != nil {
			return opts, err
		}
		opts.Horizon = ticks
	}
	return opts, nil
}

func writeOutputs(cmd *cobra.Command, res *supply.Result, collector *metrics.Collector) error {
	if eventsOut != "" {
		if err := report.WriteJSONLFile(eventsOut, res.Records); err != nil {
			return err
		}
		logrus.Infof("Wrote %d events to %s", len(res.Records), eventsOut)
	}
	if sqliteOut != "" {
		store, err := report.OpenSQLite(sqliteOut)
		if err != nil {
			return err
		}
		if err := store.WriteRun(cmd.Context(), res); err != nil {
			_ = store.Close()
			return err
		}
		if err := store.Close(); err != nil {
			return fmt.Errorf("close sqlite: %w", err)
		}
		logrus.Infof("Wrote run %s to %s", res.RunID, sqliteOut)
	}
	if xlsxOut != "" {
		layout := report.ChartLayout(chartLayout)
		if layout == "" {
			layout = report.ChartCombined
		}
		if err := report.WriteWorkbook(xlsxOut, res, layout); err != nil {
			return err
		}
		logrus.Infof("Wrote workbook to %s", xlsxOut)
	}
	if collector != nil {
		if err := collector.WriteTextfile(metricsOut); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logrus.Infof("Wrote metrics to %s", metricsOut)
	}
	return nil
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var cfgErr *scenario.ConfigError
	if errors.As(err, &cfgErr) {
		return exitConfigError
	}
	return exitRuntimeError
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// init sets up CLI flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")

	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML file")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Override the scenario seed")
	runCmd.Flags().Float64Var(&horizonDays, "horizon-days", 0, "Override the scenario horizon (days)")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "", "Override the scenario trace level (full, events)")
	runCmd.Flags().StringVar(&eventsOut, "events-out", "", "Write the event stream as JSONL to this file")
	runCmd.Flags().StringVar(&sqliteOut, "sqlite-out", "", "Append the run to this SQLite database")
	runCmd.Flags().StringVar(&xlsxOut, "xlsx-out", "", "Write an inventory workbook with charts to this file")
	runCmd.Flags().StringVar(&chartLayout, "chart-layout", "combined", "Workbook chart layout (combined, separate)")
	runCmd.Flags().StringVar(&metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")
	_ = runCmd.MarkFlagRequired("scenario")

	// Attach `run` as a subcommand to `root`
	rootCmd.AddCommand(runCmd)
}
