// Package recorder stores statistics snapshots of simulation runs in SQLite,
// one row per snapshot, so runs can be compared with plain SQL afterwards.
package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/streamsim/streamsim/sim"
)

// RunInfo describes one simulation run.
type RunInfo struct {
	Seed    int64
	World   string
	Rows    int
	Columns int
}

// Recorder writes statistics snapshots from a background writer goroutine.
// OnUpdate never blocks the simulation: snapshots are dropped when the writer
// falls behind, and counted.
type Recorder struct {
	db          *sql.DB
	insertRun   *sql.Stmt
	insertStats *sql.Stmt

	// mu guards sends on ch against Close.
	mu     sync.RWMutex
	ch     chan req
	wg     sync.WaitGroup
	once   sync.Once
	closed bool

	run     atomic.Int64
	dropped atomic.Int64
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqStats
)

type req struct {
	kind  reqKind
	run   int64
	info  RunInfo
	stats sim.Statistics
}

// Open creates or opens the database at path and starts the writer.
func Open(path string) (*Recorder, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	var last sql.NullInt64
	if err := db.QueryRow(`SELECT MAX(run_id) FROM runs`).Scan(&last); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("reading last run id: %w", err)
	}
	insertRun, insertStats, err := prepareStatements(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	r := &Recorder{
		db:          db,
		insertRun:   insertRun,
		insertStats: insertStats,
		ch:          make(chan req, 16384),
	}
	r.run.Store(last.Int64)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop()
	}()
	return r, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id INTEGER PRIMARY KEY,
			seed INTEGER NOT NULL,
			world TEXT NOT NULL,
			grid_rows INTEGER NOT NULL,
			grid_columns INTEGER NOT NULL,
			started_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS statistics (
			run_id INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			time REAL NOT NULL,
			people INTEGER NOT NULL,
			density REAL NOT NULL,
			mean_speed REAL NOT NULL,
			flow REAL NOT NULL,
			PRIMARY KEY (run_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_statistics_run_time ON statistics(run_id, time);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func prepareStatements(db *sql.DB) (insertRun, insertStats *sql.Stmt, err error) {
	insertRun, err = db.Prepare(`INSERT OR REPLACE INTO runs(run_id,seed,world,grid_rows,grid_columns,started_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return nil, nil, fmt.Errorf("preparing run insert: %w", err)
	}
	insertStats, err = db.Prepare(`INSERT OR REPLACE INTO statistics(run_id,seq,time,people,density,mean_speed,flow) VALUES(?,?,?,?,?,?,?)`)
	if err != nil {
		_ = insertRun.Close()
		return nil, nil, fmt.Errorf("preparing statistics insert: %w", err)
	}
	return insertRun, insertStats, nil
}

// BeginRun registers a new run; subsequent snapshots belong to it. It returns the run id.
func (r *Recorder) BeginRun(info RunInfo) int64 {
	id := r.run.Add(1)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return id
	}
	r.ch <- req{kind: reqRun, run: id, info: info}
	return id
}

// OnUpdate queues a snapshot for the current run.
func (r *Recorder) OnUpdate(stats sim.Statistics) {
	if r == nil {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	select {
	case r.ch <- req{kind: reqStats, run: r.run.Load(), stats: stats}:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many snapshots were discarded because the writer fell behind.
func (r *Recorder) Dropped() int64 { return r.dropped.Load() }

// Close drains pending writes and closes the database.
func (r *Recorder) Close() error {
	var err error
	r.once.Do(func() {
		r.mu.Lock()
		r.closed = true
		close(r.ch)
		r.mu.Unlock()
		r.wg.Wait()
		if n := r.dropped.Load(); n > 0 {
			logrus.Warnf("statistics recorder dropped %d snapshot(s)", n)
		}
		err = r.db.Close()
	})
	return err
}

func (r *Recorder) loop() {
	ctx := context.Background()

	insertRun, insertStats := r.insertRun, r.insertStats
	defer func() {
		_ = insertRun.Close()
		_ = insertStats.Close()
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second

		seq = map[int64]int{}
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			logrus.Errorf("statistics recorder: begin: %v", err)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			logrus.Errorf("statistics recorder: commit: %v", err)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func(err error) {
		logrus.Errorf("statistics recorder: %v", err)
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for q := range r.ch {
		begin()
		if tx == nil {
			continue
		}
		switch q.kind {
		case reqRun:
			if _, err := tx.Stmt(insertRun).Exec(q.run, q.info.Seed, q.info.World, q.info.Rows, q.info.Columns,
				time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
				rollback(err)
				continue
			}
			opCount++
		case reqStats:
			s := q.stats
			if _, err := tx.Stmt(insertStats).Exec(q.run, seq[q.run], s.Time, s.People, s.Density, s.MeanSpeed, s.Flow); err != nil {
				rollback(err)
				continue
			}
			seq[q.run]++
			opCount++
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
	commit()
}

// ReadSeries returns the snapshots of one run in recording order.
func ReadSeries(ctx context.Context, path string, run int64) ([]sim.Statistics, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT time,people,density,mean_speed,flow FROM statistics WHERE run_id=? ORDER BY seq`, run)
	if err != nil {
		return nil, fmt.Errorf("querying run %d: %w", run, err)
	}
	defer rows.Close()

	var out []sim.Statistics
	for rows.Next() {
		var s sim.Statistics
		if err := rows.Scan(&s.Time, &s.People, &s.Density, &s.MeanSpeed, &s.Flow); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
