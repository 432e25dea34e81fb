package analytics

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/patrickwarner/flagdesk/internal/models"
	"github.com/patrickwarner/flagdesk/internal/observability"
)

// AnalyticsService records flag lifecycle events. Implementations should return
// ErrUnavailable when the underlying storage is not configured.
type AnalyticsService interface {
	// RecordFlagEvent stores a single lifecycle event.
	RecordFlagEvent(ctx context.Context, ev FlagEvent) error
	// ActionCounts aggregates events newer than since by action and outcome.
	ActionCounts(ctx context.Context, since time.Time) ([]models.ActionCount, error)
}

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = errors.New("analytics unavailable")

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

var _ AnalyticsService = (*Analytics)(nil)

// FlagEvent mirrors a row in the flag_events table.
type FlagEvent struct {
	Timestamp      time.Time `json:"timestamp"`
	Action         string    `json:"action"`
	Outcome        string    `json:"outcome"`
	FlagID         int       `json:"flag_id"`
	FlagType       string    `json:"flag_type"`
	Status         string    `json:"status"`
	ActorID        int       `json:"actor_id"`
	ActorRole      string    `json:"actor_role"`
	AssigneeID     *int32    `json:"assignee_id"`
	ResolutionType *string   `json:"resolution_type"`
	RequestID      string    `json:"request_id"`
}

const createFlagEvents = `CREATE TABLE IF NOT EXISTS flag_events (
       timestamp       DateTime,
       action          String,
       outcome         String,
       flag_id         Int32,
       flag_type       String,
       status          String,
       actor_id        Int32,
       actor_role      String,
       assignee_id     Nullable(Int32),
       resolution_type Nullable(String),
       request_id      String
   ) ENGINE=MergeTree() ORDER BY (action, timestamp)`

// InitClickHouse connects to ClickHouse and ensures the flag_events table exists.
func InitClickHouse(dsn string, maxOpen, maxIdle int, lifetime time.Duration, metrics observability.MetricsRegistry) (*Analytics, error) {
	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if _, err := db.ExecContext(context.Background(), createFlagEvents); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: db, Metrics: metrics}, nil
}

// RecordFlagEvent inserts a single event row into the flag_events table.
func (a *Analytics) RecordFlagEvent(ctx context.Context, ev FlagEvent) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	var assignee sql.NullInt32
	if ev.AssigneeID != nil {
		assignee = sql.NullInt32{Int32: *ev.AssigneeID, Valid: true}
	}
	var resType sql.NullString
	if ev.ResolutionType != nil {
		resType = sql.NullString{String: *ev.ResolutionType, Valid: true}
	}

	stmt := `INSERT INTO flag_events (timestamp, action, outcome, flag_id, flag_type, status, actor_id, actor_role, assignee_id, resolution_type, request_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt, ev.Timestamp, ev.Action, ev.Outcome, int32(ev.FlagID), ev.FlagType, ev.Status,
		int32(ev.ActorID), ev.ActorRole, assignee, resType, ev.RequestID); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("action", ev.Action))
		if a.Metrics != nil {
			a.Metrics.IncrementPublishErrors("clickhouse")
		}
		return fmt.Errorf("insert %s event: %w", ev.Action, err)
	}
	return nil
}

// ActionCounts returns event totals per action and outcome since the given time.
func (a *Analytics) ActionCounts(ctx context.Context, since time.Time) ([]models.ActionCount, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `SELECT action, outcome, count() FROM flag_events WHERE timestamp >= ? GROUP BY action, outcome ORDER BY action, outcome`
	rows, err := a.DB.QueryContext(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query flag events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var out []models.ActionCount
	for rows.Next() {
		var c models.ActionCount
		if err := rows.Scan(&c.Action, &c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("scan action count: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

const eventColumns = `timestamp, action, outcome, flag_id, flag_type, status, actor_id, actor_role, assignee_id, resolution_type, request_id`

// EventsByRequestID returns the events written while serving one API request.
func (a *Analytics) EventsByRequestID(ctx context.Context, requestID string) ([]FlagEvent, error) {
	return a.queryEvents(ctx, `SELECT `+eventColumns+` FROM flag_events WHERE request_id = ? ORDER BY timestamp`, requestID)
}

// EventsForFlag returns the lifecycle history of a flag, oldest first.
func (a *Analytics) EventsForFlag(ctx context.Context, flagID int) ([]FlagEvent, error) {
	return a.queryEvents(ctx, `SELECT `+eventColumns+` FROM flag_events WHERE flag_id = ? ORDER BY timestamp`, int32(flagID))
}

func (a *Analytics) queryEvents(ctx context.Context, query string, args ...any) ([]FlagEvent, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	rows, err := a.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query flag events: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var events []FlagEvent
	for rows.Next() {
		var (
			ev       FlagEvent
			flagID   int32
			actorID  int32
			assignee sql.NullInt32
			resType  sql.NullString
		)
		if err := rows.Scan(&ev.Timestamp, &ev.Action, &ev.Outcome, &flagID, &ev.FlagType, &ev.Status,
			&actorID, &ev.ActorRole, &assignee, &resType, &ev.RequestID); err != nil {
			return nil, fmt.Errorf("scan flag event: %w", err)
		}
		ev.FlagID = int(flagID)
		ev.ActorID = int(actorID)
		if assignee.Valid {
			v := assignee.Int32
			ev.AssigneeID = &v
		}
		if resType.Valid {
			v := resType.String
			ev.ResolutionType = &v
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return events, nil
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
