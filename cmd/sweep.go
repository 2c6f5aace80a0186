package cmd

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/imp-sim/imp-sim/sim/report"
	"github.com/imp-sim/imp-sim/sim/scenario"
	"github.com/imp-sim/imp-sim/sim/supply"
	"github.com/imp-sim/imp-sim/sim/trace"
)

var (
	sweepSeeds    int // Number of seeds to run
	sweepParallel int // Concurrent runs
)

// sweepCmd runs one scenario over consecutive seeds and tabulates the outcomes
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a scenario over many seeds and summarize stockout risk",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sweepSeeds < 1 {
			return &scenario.ConfigError{Field: "--seeds", Reason: fmt.Sprintf("must be at least 1, got %d", sweepSeeds)}
		}
		if sweepParallel < 1 {
			return &scenario.ConfigError{Field: "--parallel", Reason: fmt.Sprintf("must be at least 1, got %d", sweepParallel)}
		}
		sc, err := scenario.Load(scenarioPath)
		if err != nil {
			return err
		}
		opts, err := runOptions(cmd, sc)
		if err != nil {
			return err
		}
		first := sc.Seed
		if opts.Seed != nil {
			first = *opts.Seed
		}
		seeds := make([]int64, sweepSeeds)
		for i := range seeds {
			seeds[i] = first + int64(i)
		}

		var store *report.SQLiteStore
		if sqliteOut != "" {
			store, err = report.OpenSQLite(sqliteOut)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
		}

		bar := newProgressBar(cmd.ErrOrStderr(), len(seeds), "Sweeping "+sc.Name)
		startTime := time.Now()
		results, err := runSweep(cmd.Context(), sc, seeds, opts.Horizon, sweepParallel, store, func() { _ = bar.Add(1) })
		_ = bar.Finish()
		if err != nil {
			return err
		}
		logrus.Infof("Sweep of %d seeds took %s", len(seeds), time.Since(startTime))
		_, err = fmt.Fprint(cmd.OutOrStdout(), renderSweep(sc.Name, results))
		return err
	},
}

// runSweep runs one simulation per seed with at most parallel runs in
// flight. Results are returned in seed order. The first failure cancels the
// remaining runs.
func runSweep(ctx context.Context, sc *scenario.Scenario, seeds []int64, horizon int64, parallel int, store *report.SQLiteStore, done func()) ([]*supply.Result, error) {
	results := make([]*supply.Result, len(seeds))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, seed := range seeds {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := supply.New(sc, supply.Options{
				Seed:       &seed,
				Horizon:    horizon,
				TraceLevel: trace.LevelEvents,
			})
			if err != nil {
				return err
			}
			res, err := s.Run()
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			if store != nil {
				if err := store.WriteRun(ctx, res); err != nil {
					return fmt.Errorf("seed %d: %w", seed, err)
				}
			}
			results[i] = res
			if done != nil {
				done()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// SweepStats aggregates stockout risk over a sweep.
type SweepStats struct {
	Runs           int
	StockedOut     int
	MeanUnitsShort float64
	WorstShort     int64
}

// Risk is the fraction of runs with at least one unmet demand event.
func (s SweepStats) Risk() float64 {
	if s.Runs == 0 {
		return 0
	}
	return float64(s.StockedOut) / float64(s.Runs)
}

func sweepStats(results []*supply.Result) SweepStats {
	st := SweepStats{Runs: len(results)}
	var short int64
	for _, r := range results {
		if r.Summary.StockedOut() {
			st.StockedOut++
		}
		short += r.Summary.UnitsShort
		st.WorstShort = max(st.WorstShort, r.Summary.UnitsShort)
	}
	if st.Runs > 0 {
		st.MeanUnitsShort = float64(short) / float64(st.Runs)
	}
	return st
}

func renderSweep(name string, results []*supply.Result) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		rows = append(rows, report.SweepRow(r))
	}
	st := sweepStats(results)
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("Seed sweep: %s (%d runs)", name, st.Runs)) + "\n\n")
	sb.WriteString(renderTable(report.SweepHeader, rows) + "\n\n")
	line := fmt.Sprintf("Stockout risk %.1f%% (%d/%d runs), mean units short %.1f, worst %d",
		100*st.Risk(), st.StockedOut, st.Runs, st.MeanUnitsShort, st.WorstShort)
	if st.StockedOut > 0 {
		sb.WriteString(alertStyle.Render(line) + "\n")
	} else {
		sb.WriteString(okStyle.Render(line) + "\n")
	}
	return sb.String()
}

func newProgressBar(w io.Writer, total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}

func init() {
	sweepCmd.Flags().StringVar(&scenarioPath, "scenario", "", "Path to the scenario YAML file")
	sweepCmd.Flags().Int64Var(&seed, "seed", 0, "First seed of the sweep (default: the scenario seed)")
	sweepCmd.Flags().Float64Var(&horizonDays, "horizon-days", 0, "Override the scenario horizon (days)")
	sweepCmd.Flags().IntVar(&sweepSeeds, "seeds", 10, "Number of consecutive seeds to run")
	sweepCmd.Flags().IntVar(&sweepParallel, "parallel", runtime.NumCPU(), "Maximum concurrent runs")
	sweepCmd.Flags().StringVar(&sqliteOut, "sqlite-out", "", "Append every run to this SQLite database")
	_ = sweepCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(sweepCmd)
}
