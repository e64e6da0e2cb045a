// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

var (
	eventRepoOnce     sync.Once
	eventRepoInstance *EventRepository
)

// EventRepository stores the calendar-event extractor's (C11) output,
// one row per message it has been run against.
type EventRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
	driver    string
}

func GetEventRepository() *EventRepository {
	eventRepoOnce.Do(func() {
		conn := GetConnection()
		eventRepoInstance = &EventRepository{db: conn.DB, stmtCache: conn.StmtCache, driver: conn.Driver}
	})
	return eventRepoInstance
}

var eventColumns = []string{
	"message_id", "status", "event_name", "event_date", "start_time", "end_time", "timezone",
	"event_type", "end_time_inferred", "calendar_event_id", "calendar_ical_uid",
	"model", "prompt_version", "raw_output", "error", "created_at", "updated_at",
}

func (r *EventRepository) scan(row interface{ Scan(...interface{}) error }) (*schema.EventRecord, error) {
	e := &schema.EventRecord{}
	if err := row.Scan(&e.MessageID, &e.Status, &e.EventName, &e.EventDate, &e.StartTime, &e.EndTime,
		&e.Timezone, &e.EventType, &e.EndTimeInferred, &e.CalendarEventID, &e.CalendarICalUID,
		&e.Model, &e.PromptVersion, &e.RawOutput, &e.Error, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	return e, nil
}

// Upsert replaces the extraction result for a message (re-running the
// extractor is idempotent — the message_id PK enforces at most one row).
func (r *EventRepository) Upsert(ctx context.Context, e *schema.EventRecord) error {
	now := time.Now().UTC()
	cols := []string{"message_id", "status", "event_name", "event_date", "start_time", "end_time",
		"timezone", "event_type", "end_time_inferred", "calendar_event_id", "calendar_ical_uid",
		"model", "prompt_version", "raw_output", "error", "created_at", "updated_at"}
	vals := []interface{}{e.MessageID, e.Status, e.EventName, e.EventDate, e.StartTime, e.EndTime,
		e.Timezone, e.EventType, e.EndTimeInferred, e.CalendarEventID, e.CalendarICalUID,
		e.Model, e.PromptVersion, e.RawOutput, e.Error, now, now}

	var suffix string
	if r.driver == "postgres" {
		suffix = `ON CONFLICT (message_id) DO UPDATE SET
			status = EXCLUDED.status, event_name = EXCLUDED.event_name, event_date = EXCLUDED.event_date,
			start_time = EXCLUDED.start_time, end_time = EXCLUDED.end_time, timezone = EXCLUDED.timezone,
			event_type = EXCLUDED.event_type, end_time_inferred = EXCLUDED.end_time_inferred,
			calendar_event_id = EXCLUDED.calendar_event_id, calendar_ical_uid = EXCLUDED.calendar_ical_uid,
			model = EXCLUDED.model, prompt_version = EXCLUDED.prompt_version, raw_output = EXCLUDED.raw_output,
			error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`
	} else {
		suffix = `ON CONFLICT (message_id) DO UPDATE SET
			status = excluded.status, event_name = excluded.event_name, event_date = excluded.event_date,
			start_time = excluded.start_time, end_time = excluded.end_time, timezone = excluded.timezone,
			event_type = excluded.event_type, end_time_inferred = excluded.end_time_inferred,
			calendar_event_id = excluded.calendar_event_id, calendar_ical_uid = excluded.calendar_ical_uid,
			model = excluded.model, prompt_version = excluded.prompt_version, raw_output = excluded.raw_output,
			error = excluded.error, updated_at = excluded.updated_at`
	}

	query, args, err := placeholderFormat().Insert("event_records").Columns(cols...).Values(vals...).Suffix(suffix).ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *EventRepository) GetByMessageID(ctx context.Context, messageID int64) (*schema.EventRecord, error) {
	query, args, err := placeholderFormat().Select(eventColumns...).From("event_records").
		Where(sq.Eq{"message_id": messageID}).ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	e, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

// ListUpcoming returns succeeded events with event_date in the future,
// ordered soonest first.
func (r *EventRepository) ListUpcoming(ctx context.Context, after time.Time, limit int) ([]*schema.EventRecord, error) {
	query, args, err := placeholderFormat().Select(eventColumns...).From("event_records").
		Where(sq.Eq{"status": schema.EventStatusSucceeded}).
		Where(sq.GtOrEq{"event_date": after}).
		OrderBy("event_date ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.EventRecord
	for rows.Next() {
		e, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
