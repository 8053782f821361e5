// Package database defines the queries, insertions and transactions to the database
package database

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// DailyStats is one row of per client, per task dispatch totals for a day.
type DailyStats struct {
	Date          string
	Kind          string
	Client        string
	Task          string
	RequestCount  uint64
	ErrorCount    uint64
	CanceledCount uint64
	StreamFrames  uint64
	TotalTime     int64
}

// SaveDailyStats upserts stats, adding to any totals already stored for the
// same day, client and task.
func SaveDailyStats(ctx context.Context, tx *sql.Tx, stats []DailyStats) error {
	if len(stats) == 0 {
		return nil
	}
	statsSQLStr := `INSERT INTO client_daily_stats (
		date, kind, client, task, request_count, error_count, canceled_requests, stream_frames, total_time
	) VALUES`

	// stable statement text for a given set of keys
	sort.Slice(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Client != b.Client {
			return a.Client < b.Client
		}
		return a.Task < b.Task
	})

	statsVals := make([]any, 0, len(stats)*9)
	for _, s := range stats {
		statsSQLStr += "(?, ?, ?, ?, ?, ?, ?, ?, ?),"
		statsVals = append(statsVals, s.Date, s.Kind, s.Client, s.Task, s.RequestCount, s.ErrorCount, s.CanceledCount, s.StreamFrames, s.TotalTime)
	}
	statsSQLStr = strings.TrimSuffix(statsSQLStr, ",")
	statsSQLStr += ` ON DUPLICATE KEY UPDATE
		request_count = request_count + VALUES(request_count),
		error_count = error_count + VALUES(error_count),
		canceled_requests = canceled_requests + VALUES(canceled_requests),
		stream_frames = stream_frames + VALUES(stream_frames),
		total_time = total_time + VALUES(total_time)`

	if _, err := tx.ExecContext(ctx, statsSQLStr, statsVals...); err != nil {
		return fmt.Errorf("failed to save daily stats: %w", err)
	}
	return nil
}

// ExecuteTransaction executes one transaction with one or multiple database executions.
func ExecuteTransaction(ctx context.Context, writeDB *sql.DB, fns []func(*sql.Tx) error) error {
	tx, err := writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, fn := range fns {
		if err := fn(tx); err != nil {
			return fmt.Errorf("failed to execute transaction function: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
