package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/picoalign/internal/simplex"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// StatusRunning marks a run that has not finished.
const StatusRunning = "running"

// NewRun describes a run at its start.
type NewRun struct {
	StartedAt time.Time
	Dim       int
	Params    simplex.Config
	Transport string
	Sensor    string
}

// RunOutcome is recorded when a run ends.
type RunOutcome struct {
	FinishedAt  time.Time
	Status      string
	Iterations  int
	Evaluations int
	Best        []float64
	BestCost    float64
	FinalSignal *float64
	Err         error
}

// Run is a persisted alignment run.
type Run struct {
	ID          string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Dim         int
	Params      simplex.Config
	Transport   string
	Sensor      string
	Status      string
	Iterations  int
	Evaluations int
	Best        []float64
	BestCost    *float64
	FinalSignal *float64
	Error       string
}

// HistoryRow is one persisted history entry.
type HistoryRow struct {
	Iteration      int
	ElapsedSeconds float64
	Cost           float64
	Position       []float64
}

// CreateRun inserts a running run and returns its ID.
func (db *DB) CreateRun(r NewRun) (string, error) {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return "", fmt.Errorf("failed to encode run params: %w", err)
	}
	id := uuid.New().String()
	_, err = db.Exec(`
		INSERT INTO runs (run_id, started_at, dim, params_json, transport, sensor, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, r.StartedAt.UnixNano(), r.Dim, string(params), r.Transport, r.Sensor, StatusRunning)
	if err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}
	return id, nil
}

// AppendHistory stores history entries for a run in one transaction.
// Re-appending an iteration replaces it.
func (db *DB) AppendHistory(runID string, entries []simplex.HistoryEntry) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO run_history (run_id, iteration, elapsed_seconds, cost, position_json)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		pos, err := json.Marshal(e.Position)
		if err != nil {
			return fmt.Errorf("failed to encode position: %w", err)
		}
		if _, err := stmt.Exec(runID, e.Iteration, e.Elapsed.Seconds(), e.Cost, string(pos)); err != nil {
			return fmt.Errorf("failed to insert history for iteration %d: %w", e.Iteration, err)
		}
	}
	return tx.Commit()
}

// FinishRun records the outcome of a run.
func (db *DB) FinishRun(runID string, o RunOutcome) error {
	var best sql.NullString
	var bestCost sql.NullFloat64
	if o.Best != nil {
		b, err := json.Marshal(o.Best)
		if err != nil {
			return fmt.Errorf("failed to encode best position: %w", err)
		}
		best = sql.NullString{String: string(b), Valid: true}
		bestCost = sql.NullFloat64{Float64: o.BestCost, Valid: true}
	}
	var final sql.NullFloat64
	if o.FinalSignal != nil {
		final = sql.NullFloat64{Float64: *o.FinalSignal, Valid: true}
	}
	errText := ""
	if o.Err != nil {
		errText = o.Err.Error()
	}

	res, err := db.Exec(`
		UPDATE runs SET finished_at = ?, status = ?, iterations = ?, evaluations = ?,
			best_json = ?, best_cost = ?, final_signal = ?, error = ?
		WHERE run_id = ?`,
		o.FinishedAt.UnixNano(), o.Status, o.Iterations, o.Evaluations,
		best, bestCost, final, errText, runID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

const runColumns = `run_id, started_at, finished_at, dim, params_json, transport, sensor,
	status, iterations, evaluations, best_json, best_cost, final_signal, error`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r          Run
		startedAt  int64
		finishedAt sql.NullInt64
		params     string
		best       sql.NullString
		bestCost   sql.NullFloat64
		final      sql.NullFloat64
	)
	if err := row.Scan(&r.ID, &startedAt, &finishedAt, &r.Dim, &params, &r.Transport, &r.Sensor,
		&r.Status, &r.Iterations, &r.Evaluations, &best, &bestCost, &final, &r.Error); err != nil {
		return nil, err
	}

	r.StartedAt = time.Unix(0, startedAt).UTC()
	if finishedAt.Valid {
		t := time.Unix(0, finishedAt.Int64).UTC()
		r.FinishedAt = &t
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("failed to decode params of run %s: %w", r.ID, err)
	}
	if best.Valid {
		if err := json.Unmarshal([]byte(best.String), &r.Best); err != nil {
			return nil, fmt.Errorf("failed to decode best position of run %s: %w", r.ID, err)
		}
	}
	if bestCost.Valid {
		v := bestCost.Float64
		r.BestCost = &v
	}
	if final.Valid {
		v := final.Float64
		r.FinalSignal = &v
	}
	return &r, nil
}

// GetRun returns a run by ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	row := db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs first. limit <= 0 returns all.
func (db *DB) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// History returns the history of a run ordered by iteration.
func (db *DB) History(runID string) ([]HistoryRow, error) {
	rows, err := db.Query(`
		SELECT iteration, elapsed_seconds, cost, position_json
		FROM run_history WHERE run_id = ? ORDER BY iteration`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var out []HistoryRow
	for rows.Next() {
		var h HistoryRow
		var pos string
		if err := rows.Scan(&h.Iteration, &h.ElapsedSeconds, &h.Cost, &pos); err != nil {
			return nil, fmt.Errorf("failed to scan history: %w", err)
		}
		if err := json.Unmarshal([]byte(pos), &h.Position); err != nil {
			return nil, fmt.Errorf("failed to decode position: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and its history.
func (db *DB) DeleteRun(runID string) error {
	res, err := db.Exec(`DELETE FROM runs WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
