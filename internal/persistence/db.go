// Package persistence archives finished simulation runs in SQLite: the
// parameters, coverage summary, exported report and event log of each run.
// Archived runs are read back for listing and download only; a run is never
// restored into a live simulation.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/brushsim/internal/brush"
	"github.com/talgya/brushsim/internal/dose"
	"github.com/talgya/brushsim/internal/engine"
)

// ErrRunNotFound is returned when no archived run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

// DB wraps a SQLite connection for the run archive.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// A single writer avoids SQLITE_BUSY between the tick loop and HTTP handlers.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL,
		finished_at INTEGER NOT NULL,
		completed INTEGER NOT NULL,
		ticks INTEGER NOT NULL,
		elapsed REAL NOT NULL,
		contacts INTEGER NOT NULL,
		params_json TEXT NOT NULL,
		nodules INTEGER NOT NULL,
		active_nodules INTEGER NOT NULL,
		wafer_cells INTEGER NOT NULL,
		uncontacted_cells INTEGER NOT NULL,
		low_cells INTEGER NOT NULL,
		total_dose REAL NOT NULL,
		mean_dose REAL NOT NULL,
		max_dose REAL NOT NULL,
		cv REAL NOT NULL,
		report TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS run_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		elapsed REAL NOT NULL,
		kind TEXT NOT NULL,
		description TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
	CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RunRecord is one archived run. Times are stored as Unix milliseconds.
type RunRecord struct {
	ID               string    `db:"id" json:"id"`
	StartedAt        time.Time `db:"-" json:"started_at"`
	FinishedAt       time.Time `db:"-" json:"finished_at"`
	StartedMillis    int64     `db:"started_at" json:"-"`
	FinishedMillis   int64     `db:"finished_at" json:"-"`
	Completed        bool      `db:"completed" json:"completed"`
	Ticks            int64     `db:"ticks" json:"ticks"`
	Elapsed          float64   `db:"elapsed" json:"elapsed"`
	Contacts         int64     `db:"contacts" json:"contacts"`
	ParamsJSON       string    `db:"params_json" json:"-"`
	Nodules          int       `db:"nodules" json:"nodules"`
	ActiveNodules    int       `db:"active_nodules" json:"active_nodules"`
	WaferCells       int       `db:"wafer_cells" json:"wafer_cells"`
	UncontactedCells int       `db:"uncontacted_cells" json:"uncontacted_cells"`
	LowCells         int       `db:"low_cells" json:"low_cells"`
	TotalDose        float64   `db:"total_dose" json:"total_dose"`
	MeanDose         float64   `db:"mean_dose" json:"mean_dose"`
	MaxDose          float64   `db:"max_dose" json:"max_dose"`
	CV               float64   `db:"cv" json:"cv"`
	Report           string    `db:"report" json:"report,omitempty"`
}

// Params decodes the parameter set the run used.
func (r RunRecord) Params() (brush.Params, error) {
	var p brush.Params
	if err := json.Unmarshal([]byte(r.ParamsJSON), &p); err != nil {
		return p, fmt.Errorf("decode params of run %s: %w", r.ID, err)
	}
	return p, nil
}

func (r *RunRecord) fillTimes() {
	r.StartedAt = time.UnixMilli(r.StartedMillis).UTC()
	r.FinishedAt = time.UnixMilli(r.FinishedMillis).UTC()
}

// NewRunRecord builds the archive row for a finished run.
func NewRunRecord(sum engine.RunSummary, cov dose.Coverage, report string) (RunRecord, error) {
	paramsJSON, err := json.Marshal(sum.Snapshot.Params)
	if err != nil {
		return RunRecord{}, fmt.Errorf("encode params: %w", err)
	}
	snap := sum.Snapshot
	var total float64
	if snap.Grid != nil {
		total = snap.Grid.Total()
	}
	r := RunRecord{
		ID:               sum.ID,
		StartedMillis:    sum.StartedAt.UnixMilli(),
		FinishedMillis:   sum.FinishedAt.UnixMilli(),
		Completed:        sum.Completed,
		Ticks:            int64(snap.Tick),
		Elapsed:          snap.Elapsed,
		Contacts:         int64(sum.Contacts),
		ParamsJSON:       string(paramsJSON),
		Nodules:          len(snap.Nodules),
		ActiveNodules:    snap.ActiveNodules(),
		WaferCells:       cov.WaferCells,
		UncontactedCells: cov.Uncontacted,
		LowCells:         cov.Low,
		TotalDose:        total,
		MeanDose:         cov.Mean,
		MaxDose:          cov.Max,
		CV:               cov.CV,
		Report:           report,
	}
	r.fillTimes()
	return r, nil
}

// SaveRun archives a run together with its events and records it as the
// latest run.
func (db *DB) SaveRun(r RunRecord, events []engine.Event) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT OR REPLACE INTO runs
		(id, started_at, finished_at, completed, ticks, elapsed, contacts, params_json,
		 nodules, active_nodules, wafer_cells, uncontacted_cells, low_cells,
		 total_dose, mean_dose, max_dose, cv, report)
		VALUES (:id, :started_at, :finished_at, :completed, :ticks, :elapsed, :contacts, :params_json,
		 :nodules, :active_nodules, :wafer_cells, :uncontacted_cells, :low_cells,
		 :total_dose, :mean_dose, :max_dose, :cv, :report)`, r)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}

	if len(events) > 0 {
		stmt, err := tx.Preparex(`INSERT INTO run_events (run_id, tick, elapsed, kind, description)
			VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, e := range events {
			if _, err := stmt.Exec(r.ID, e.Tick, e.Elapsed, e.Kind, e.Description); err != nil {
				return fmt.Errorf("insert event for run %s: %w", r.ID, err)
			}
		}
	}

	if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", "last_run", r.ID); err != nil {
		return fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	slog.Info("run archived", "run", r.ID, "ticks", r.Ticks, "events", len(events))
	return nil
}

const runColumns = `id, started_at, finished_at, completed, ticks, elapsed, contacts, params_json,
	nodules, active_nodules, wafer_cells, uncontacted_cells, low_cells,
	total_dose, mean_dose, max_dose, cv`

// ListRuns returns the most recent runs first, without their reports.
func (db *DB) ListRuns(limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := db.conn.Select(&runs,
		"SELECT "+runColumns+" FROM runs ORDER BY started_at DESC, id LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	for i := range runs {
		runs[i].fillTimes()
	}
	return runs, nil
}

// GetRun returns one archived run including its report.
func (db *DB) GetRun(id string) (RunRecord, error) {
	var r RunRecord
	err := db.conn.Get(&r, "SELECT "+runColumns+", report FROM runs WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return r, fmt.Errorf("get run %s: %w", id, err)
	}
	r.fillTimes()
	return r, nil
}

// RunEvents returns the archived events of a run in order.
func (db *DB) RunEvents(id string) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		"SELECT tick, elapsed, kind, description FROM run_events WHERE run_id = ? ORDER BY id", id)
	return events, err
}

// SaveMeta stores a key-value pair in the archive metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// LatestRun returns the most recently archived run.
func (db *DB) LatestRun() (RunRecord, error) {
	id, err := db.GetMeta("last_run")
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrRunNotFound
	}
	if err != nil {
		return RunRecord{}, err
	}
	return db.GetRun(id)
}
