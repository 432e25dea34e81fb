// Package reporting builds moderation activity reports from the flag_events
// table in ClickHouse.
package reporting

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"
)

// DailyActivity counts successful lifecycle actions on one day.
type DailyActivity struct {
	Date     time.Time `json:"date"`
	Assigned int64     `json:"assigned"`
	Resolved int64     `json:"resolved"`
	// Rejected counts assign and resolve calls that did not succeed.
	Rejected int64 `json:"rejected"`
}

// ResolverActivity counts what one staff member resolved.
type ResolverActivity struct {
	ActorID   int   `json:"actor_id"`
	Resolved  int64 `json:"resolved"`
	Corrected int64 `json:"corrected"`
}

// Totals aggregates a report period.
type Totals struct {
	Assigned int64 `json:"assigned"`
	Resolved int64 `json:"resolved"`
	Rejected int64 `json:"rejected"`
	// ResolveRatio is resolved per assigned, as a percentage.
	ResolveRatio float64 `json:"resolve_ratio"`
}

// ModerationReport is the full report for a look-back window.
type ModerationReport struct {
	Days      int                `json:"days"`
	Totals    Totals             `json:"totals"`
	Daily     []DailyActivity    `json:"daily"`
	Resolvers []ResolverActivity `json:"resolvers"`
}

// GenerateModerationReport queries ClickHouse for the last days of activity.
func GenerateModerationReport(ctx context.Context, db *sql.DB, days int) (*ModerationReport, error) {
	daily, err := dailyActivity(ctx, db, days)
	if err != nil {
		return nil, fmt.Errorf("get daily activity: %w", err)
	}
	resolvers, err := resolverActivity(ctx, db, days, 10)
	if err != nil {
		return nil, fmt.Errorf("get resolver activity: %w", err)
	}
	return &ModerationReport{
		Days:      days,
		Totals:    Summarize(daily),
		Daily:     daily,
		Resolvers: resolvers,
	}, nil
}

// Summarize adds up daily rows.
func Summarize(daily []DailyActivity) Totals {
	var t Totals
	for _, d := range daily {
		t.Assigned += d.Assigned
		t.Resolved += d.Resolved
		t.Rejected += d.Rejected
	}
	if t.Assigned > 0 {
		t.ResolveRatio = float64(t.Resolved) / float64(t.Assigned) * 100
	}
	return t
}

func dailyActivity(ctx context.Context, db *sql.DB, days int) ([]DailyActivity, error) {
	query := `
		SELECT
			toDate(timestamp) AS date,
			countIf(action = 'assign' AND outcome = 'ok') AS assigned,
			countIf(action = 'resolve' AND outcome = 'ok') AS resolved,
			countIf(outcome != 'ok') AS rejected
		FROM flag_events
		WHERE timestamp >= now() - INTERVAL ? DAY
		GROUP BY date
		ORDER BY date`

	rows, err := db.QueryContext(ctx, query, days)
	if err != nil {
		return nil, fmt.Errorf("query daily activity: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []DailyActivity
	for rows.Next() {
		var d DailyActivity
		var assigned, resolved, rejected uint64
		if err := rows.Scan(&d.Date, &assigned, &resolved, &rejected); err != nil {
			return nil, fmt.Errorf("scan daily activity: %w", err)
		}
		d.Assigned, d.Resolved, d.Rejected = int64(assigned), int64(resolved), int64(rejected)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func resolverActivity(ctx context.Context, db *sql.DB, days, limit int) ([]ResolverActivity, error) {
	query := `
		SELECT
			actor_id,
			count() AS resolved,
			countIf(resolution_type = 'corrected') AS corrected
		FROM flag_events
		WHERE action = 'resolve' AND outcome = 'ok' AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY actor_id
		ORDER BY resolved DESC
		LIMIT ?`

	rows, err := db.QueryContext(ctx, query, days, limit)
	if err != nil {
		return nil, fmt.Errorf("query resolver activity: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []ResolverActivity
	for rows.Next() {
		var (
			r         ResolverActivity
			actorID   int32
			resolved  uint64
			corrected uint64
		)
		if err := rows.Scan(&actorID, &resolved, &corrected); err != nil {
			return nil, fmt.Errorf("scan resolver activity: %w", err)
		}
		r.ActorID, r.Resolved, r.Corrected = int(actorID), int64(resolved), int64(corrected)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Resolved > out[j].Resolved })
	return out, nil
}
