package persistence

import (
	"bytes"
	"fmt"

	"github.com/talgya/brushsim/internal/dose"
	"github.com/talgya/brushsim/internal/engine"
	"github.com/talgya/brushsim/internal/report"
)

// Archive measures a finished run, renders its text report and saves both
// along with the run's events.
func (db *DB) Archive(sum engine.RunSummary, lowThreshold float64, events []engine.Event) (RunRecord, error) {
	if sum.Snapshot.Grid == nil {
		return RunRecord{}, fmt.Errorf("run %s has no grid", sum.ID)
	}
	cov := dose.Measure(sum.Snapshot.Grid, lowThreshold)

	var buf bytes.Buffer
	if err := report.Text(&buf, sum.Snapshot, &cov, sum.FinishedAt); err != nil {
		return RunRecord{}, fmt.Errorf("render report: %w", err)
	}

	rec, err := NewRunRecord(sum, cov, buf.String())
	if err != nil {
		return RunRecord{}, err
	}
	if err := db.SaveRun(rec, events); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}
