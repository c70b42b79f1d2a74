package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/streamsim/streamsim/sim"
	"github.com/streamsim/streamsim/sim/recorder"
	"github.com/streamsim/streamsim/sim/trace"
)

// runOptions collects everything `streamsim run` needs.
type runOptions struct {
	world      worldFlags
	seedSet    bool
	statsDB    string
	traceDir   string
	traceLevel string
}

// runResult is what a finished (or interrupted) run reports.
type runResult struct {
	Phase       sim.Phase
	Time        float64
	People      int
	Spawned     int
	Statistics  sim.Statistics
	Summary     *trace.TraceSummary
	RunID       int64
	Interrupted bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a world to completion and report its statistics",
		Run: func(cmd *cobra.Command, args []string) {
			opts.seedSet = cmd.Flags().Changed("seed")

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			startTime := time.Now()
			res, err := runSimulation(ctx, opts)
			if err != nil {
				logrus.Fatalf("simulation failed: %v", err)
			}
			printResult(cmd, res, time.Since(startTime))
		},
	}
	opts.world.register(cmd, 0)
	cmd.Flags().StringVar(&opts.statsDB, "stats-db", "", "Append statistics snapshots to this SQLite database")
	cmd.Flags().StringVar(&opts.traceDir, "trace-dir", "", "Write zstd-compressed JSONL traces into this directory")
	cmd.Flags().StringVar(&opts.traceLevel, "trace-level", string(trace.TraceLevelStatistics), "Trace verbosity (none, statistics, movements)")
	return cmd
}

// runSimulation builds the world, wires the optional recorders and runs it on
// the calling goroutine until it ends or ctx is cancelled.
func runSimulation(ctx context.Context, opts runOptions) (*runResult, error) {
	if !trace.IsValidTraceLevel(opts.traceLevel) {
		return nil, fmt.Errorf("unknown trace level %q", opts.traceLevel)
	}
	w, err := opts.world.load(opts.seedSet)
	if err != nil {
		return nil, err
	}
	s := w.sim
	res := &runResult{}

	if opts.statsDB != "" {
		rec, err := recorder.Open(opts.statsDB)
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				logrus.Errorf("closing statistics database: %v", err)
			}
		}()
		res.RunID = rec.BeginRun(recorder.RunInfo{
			Seed:    w.seed,
			World:   filepath.Base(opts.world.path),
			Rows:    w.config.Rows,
			Columns: w.config.Columns,
		})
		s.AddStatisticsListener(rec)
	}

	tr := trace.NewSimulationTrace(trace.TraceConfig{
		Level:        trace.TraceLevel(opts.traceLevel),
		Dir:          opts.traceDir,
		KeepInMemory: true,
	})
	window := opts.world.window
	cellsPerMeter := opts.world.cellsPerMeter
	s.AddStatisticsListener(sim.StatisticsFunc(func(stats sim.Statistics) {
		err := tr.RecordStatistics(trace.StatisticsRecord{
			Time:          stats.Time,
			People:        stats.People,
			Window:        window,
			CellsPerMeter: cellsPerMeter,
			MeanSpeed:     stats.MeanSpeed,
			Density:       stats.Density,
			Flow:          stats.Flow,
		})
		if err != nil {
			logrus.Errorf("%v", err)
		}
	}))
	if tr.Config.Level == trace.TraceLevelMovements {
		s.AddMoveListener(func(now float64, p *sim.Person) {
			loc := p.Location()
			err := tr.RecordMovement(trace.MovementRecord{
				Time:            now,
				PersonID:        p.ID(),
				Row:             loc.Row,
				Column:          loc.Column,
				Speed:           p.Speed(),
				MeanSpeed:       p.MeanSpeed(),
				MeanSpeedWindow: p.MeanSpeedWindow(window),
				Window:          window,
			})
			if err != nil {
				logrus.Errorf("%v", err)
			}
		})
	}

	runErr := s.Run(ctx)
	if closeErr := tr.Close(); closeErr != nil {
		logrus.Errorf("closing trace: %v", closeErr)
	}
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		logrus.Warnf("simulation interrupted at t=%.3f", s.CurrentTime())
		res.Interrupted = true
	default:
		return nil, runErr
	}

	res.Phase = s.Phase()
	res.Time = s.CurrentTime()
	res.People = s.PeopleCount()
	for _, src := range s.Sources() {
		res.Spawned += src.SpawnCount()
	}
	res.Statistics = s.LastStatistics()
	res.Summary = trace.Summarize(tr)
	return res, nil
}

func printResult(cmd *cobra.Command, res *runResult, wall time.Duration) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "=== Simulation Result ===\n")
	fmt.Fprintf(out, "Phase          : %s\n", res.Phase)
	fmt.Fprintf(out, "Virtual time   : %.3f\n", res.Time)
	fmt.Fprintf(out, "Wall time      : %s\n", wall.Round(time.Millisecond))
	fmt.Fprintf(out, "Spawned        : %d\n", res.Spawned)
	fmt.Fprintf(out, "People left    : %d\n", res.People)
	fmt.Fprintf(out, "Density        : %.4f\n", res.Statistics.Density)
	fmt.Fprintf(out, "Mean speed     : %.4f\n", res.Statistics.MeanSpeed)
	fmt.Fprintf(out, "Flow           : %.4f\n", res.Statistics.Flow)
	if sum := res.Summary; sum != nil && sum.Snapshots > 0 {
		fmt.Fprintf(out, "Snapshots      : %d (peak %d people, mean density %.4f)\n", sum.Snapshots, sum.PeakPeople, sum.MeanDensity)
	}
	if sum := res.Summary; sum != nil && sum.TotalMoves > 0 {
		fmt.Fprintf(out, "Moves          : %d by %d people\n", sum.TotalMoves, sum.UniquePeople)
	}
	if res.RunID > 0 {
		fmt.Fprintf(out, "Run id         : %d\n", res.RunID)
	}
	logrus.Info("Simulation complete.")
}
