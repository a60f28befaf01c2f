package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// RunStatus represents the current state of a backtest run.
// It tracks the lifecycle from creation through completion or failure.
type RunStatus string

const (
	RunPending   RunStatus = "pending"   // RunPending indicates the run is created but not yet started
	RunRunning   RunStatus = "running"   // RunRunning indicates the run is executing one of its stages
	RunCompleted RunStatus = "completed" // RunCompleted indicates the report was written
	RunFailed    RunStatus = "failed"    // RunFailed indicates a stage returned an error
)

// RunStage names the step a run is executing.
type RunStage string

const (
	StageFetch    RunStage = "fetch"    // StageFetch downloads candles from the provider
	StageGaps     RunStage = "gaps"     // StageGaps checks the candle sequence for holes
	StageBacktest RunStage = "backtest" // StageBacktest simulates the strategy
	StageRender   RunStage = "render"   // StageRender writes the report
)

// Run records one end-to-end backtest invocation with status tracking and
// the data-quality facts gathered along the way.
type Run struct {
	ID             string    `json:"id"`
	Symbol         string    `json:"symbol"`
	Interval       string    `json:"interval"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         RunStatus `json:"status"`
	Stage          RunStage  `json:"stage,omitempty"`
	CandlesFetched int       `json:"candles_fetched"`
	Truncated      bool      `json:"truncated"`
	GapsFound      int       `json:"gaps_found"`
	MissingCandles int       `json:"missing_candles"`
	Error          string    `json:"error,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewRun creates a Run in pending status with current timestamps.
// All time values should be in UTC.
//
// Example:
//
//	run := NewRun(runID, "SOLUSDT", "1d", start, end)
func NewRun(id, symbol, interval string, startTime, endTime time.Time) *Run {
	now := time.Now().UTC()
	return &Run{
		ID:        id,
		Symbol:    symbol,
		Interval:  interval,
		StartTime: startTime,
		EndTime:   endTime,
		Status:    RunPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Start transitions the run from pending to running.
// Returns an error if the run is not pending.
func (r *Run) Start() error {
	if r.Status != RunPending {
		return fmt.Errorf("cannot start run: current status is %s, expected %s", r.Status, RunPending)
	}

	r.Status = RunRunning
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Enter records that the run moved on to stage.
// Returns an error if the run is not running.
func (r *Run) Enter(stage RunStage) error {
	if r.Status != RunRunning {
		return fmt.Errorf("cannot enter stage %s: current status is %s, expected %s", stage, r.Status, RunRunning)
	}

	r.Stage = stage
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFetch stores what the provider returned.
func (r *Run) RecordFetch(candles int, truncated bool) {
	r.CandlesFetched = candles
	r.Truncated = truncated
	r.UpdatedAt = time.Now().UTC()
}

// RecordGaps stores the gap detection outcome.
func (r *Run) RecordGaps(gaps []Gap) {
	r.GapsFound = len(gaps)
	r.MissingCandles = 0
	for _, g := range gaps {
		r.MissingCandles += g.Missing
	}
	r.UpdatedAt = time.Now().UTC()
}

// Complete transitions the run from running to completed.
// The last stage is kept for reference.
func (r *Run) Complete() error {
	if r.Status != RunRunning {
		return fmt.Errorf("cannot complete run: current status is %s, expected %s", r.Status, RunRunning)
	}

	r.Status = RunCompleted
	r.Error = ""
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail transitions the run from running to failed, recording the error
// message against the current stage.
func (r *Run) Fail(errorMsg string) error {
	if r.Status != RunRunning {
		return fmt.Errorf("cannot fail run: current status is %s, expected %s", r.Status, RunRunning)
	}

	r.Status = RunFailed
	r.Error = errorMsg
	r.UpdatedAt = time.Now().UTC()
	return nil
}

// IsComplete reports whether the run finished successfully.
func (r *Run) IsComplete() bool {
	return r.Status == RunCompleted
}

// IsFailed reports whether the run stopped with an error.
func (r *Run) IsFailed() bool {
	return r.Status == RunFailed
}

// Elapsed returns the wall time between creation and the last update.
func (r *Run) Elapsed() time.Duration {
	return r.UpdatedAt.Sub(r.CreatedAt)
}

// Summary returns a human-readable one-line description for logs.
func (r *Run) Summary() string {
	s := fmt.Sprintf("Run %s: %s %s [%s to %s] - Status: %s (%d candles, %d gaps)",
		r.ID,
		r.Symbol,
		r.Interval,
		r.StartTime.Format("2006-01-02"),
		r.EndTime.Format("2006-01-02"),
		r.Status,
		r.CandlesFetched,
		r.GapsFound,
	)
	if r.Status == RunFailed {
		s += fmt.Sprintf(" failed during %s: %s", r.Stage, r.Error)
	}
	return s
}

// ToJSON converts the run to an indented JSON string.
func (r *Run) ToJSON() (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal run to JSON: %w", err)
	}
	return string(data), nil
}
