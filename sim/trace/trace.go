package trace

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// TraceLevel controls the verbosity of tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelStatistics captures statistics snapshots only.
	TraceLevelStatistics TraceLevel = "statistics"
	// TraceLevelMovements captures statistics snapshots and every movement decision.
	TraceLevelMovements TraceLevel = "movements"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:       true,
	TraceLevelStatistics: true,
	TraceLevelMovements:  true,
	"":                   true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// File names used inside TraceConfig.Dir.
const (
	MovementsFile  = "movements.jsonl.zst"
	StatisticsFile = "statistics.jsonl.zst"
)

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
	// Dir receives compressed JSONL files. Empty keeps records in memory only.
	Dir string
	// KeepInMemory retains records for Summarize even when writing to Dir.
	KeepInMemory bool
}

// SimulationTrace collects records during a simulation run.
type SimulationTrace struct {
	Config     TraceConfig
	Movements  []MovementRecord
	Statistics []StatisticsRecord

	movements  *JSONLZstdWriter
	statistics *JSONLZstdWriter
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	st := &SimulationTrace{
		Config:     config,
		Movements:  make([]MovementRecord, 0),
		Statistics: make([]StatisticsRecord, 0),
	}
	if config.Dir != "" {
		if config.Level == TraceLevelMovements {
			st.movements = NewJSONLZstdWriter(filepath.Join(config.Dir, MovementsFile))
		}
		if config.Level == TraceLevelMovements || config.Level == TraceLevelStatistics {
			st.statistics = NewJSONLZstdWriter(filepath.Join(config.Dir, StatisticsFile))
		}
	}
	return st
}

func (st *SimulationTrace) inMemory() bool {
	return st.Config.Dir == "" || st.Config.KeepInMemory
}

// RecordMovement appends a movement record. Ignored below TraceLevelMovements.
func (st *SimulationTrace) RecordMovement(record MovementRecord) error {
	if st.Config.Level != TraceLevelMovements {
		return nil
	}
	if st.inMemory() {
		st.Movements = append(st.Movements, record)
	}
	if st.movements != nil {
		if err := st.movements.Write(record); err != nil {
			return fmt.Errorf("writing movement trace: %w", err)
		}
	}
	return nil
}

// RecordStatistics appends a statistics record. Ignored at TraceLevelNone.
func (st *SimulationTrace) RecordStatistics(record StatisticsRecord) error {
	if st.Config.Level != TraceLevelMovements && st.Config.Level != TraceLevelStatistics {
		return nil
	}
	if st.inMemory() {
		st.Statistics = append(st.Statistics, record)
	}
	if st.statistics != nil {
		if err := st.statistics.Write(record); err != nil {
			return fmt.Errorf("writing statistics trace: %w", err)
		}
	}
	return nil
}

// Close flushes and closes the trace files.
func (st *SimulationTrace) Close() error {
	var errs []error
	for _, w := range []*JSONLZstdWriter{st.movements, st.statistics} {
		if w == nil {
			continue
		}
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 && st.Config.Dir != "" {
		logrus.Infof("trace written to %s", st.Config.Dir)
	}
	return errors.Join(errs...)
}
