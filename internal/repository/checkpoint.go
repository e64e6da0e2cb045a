// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

var (
	checkpointRepoOnce     sync.Once
	checkpointRepoInstance *CheckpointRepository
)

// CheckpointRepository is the durable key/value store backing C1: the
// ingestion watermark, current-phase marker, and retention default.
type CheckpointRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
}

func GetCheckpointRepository() *CheckpointRepository {
	checkpointRepoOnce.Do(func() {
		conn := GetConnection()
		checkpointRepoInstance = &CheckpointRepository{db: conn.DB, stmtCache: conn.StmtCache}
	})
	return checkpointRepoInstance
}

// Get returns the raw string value for key, or ("", false) if absent.
func (r *CheckpointRepository) Get(ctx context.Context, key string) (string, bool, error) {
	query, args, err := placeholderFormat().
		Select("value").From("checkpoints").Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return "", false, err
	}

	var value string
	if err := r.db.GetContext(ctx, &value, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, err
	}
	return value, true, nil
}

// Set upserts key to value, updating the updated_at timestamp.
func (r *CheckpointRepository) Set(ctx context.Context, key, value string) error {
	if GetConnection().Driver == "postgres" {
		query, args, err := placeholderFormat().
			Insert("checkpoints").
			Columns("key", "value", "updated_at").
			Values(key, value, time.Now().UTC()).
			Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
			ToSql()
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, query, args...)
		return err
	}

	query, args, err := placeholderFormat().
		Insert("checkpoints").
		Columns("key", "value", "updated_at").
		Values(key, value, time.Now().UTC()).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at").
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// GetLastIngestedTimestamp returns the ingestion watermark, or the zero
// time if ingestion has never run.
func (r *CheckpointRepository) GetLastIngestedTimestamp(ctx context.Context) (time.Time, error) {
	v, ok, err := r.Get(ctx, schema.CheckpointKeyLastIngestedTimestamp)
	if err != nil {
		return time.Time{}, err
	}
	if !ok {
		return time.Time{}, nil
	}
	sec, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}

// AdvanceLastIngestedTimestamp advances the watermark to ts, but only if ts
// is strictly greater than the current value (monotonicity, spec §8).
func (r *CheckpointRepository) AdvanceLastIngestedTimestamp(ctx context.Context, ts time.Time) error {
	current, err := r.GetLastIngestedTimestamp(ctx)
	if err != nil {
		return err
	}
	if !ts.After(current) {
		return nil
	}
	return r.Set(ctx, schema.CheckpointKeyLastIngestedTimestamp, strconv.FormatInt(ts.Unix(), 10))
}

func (r *CheckpointRepository) GetCurrentPhase(ctx context.Context) (string, error) {
	v, _, err := r.Get(ctx, schema.CheckpointKeyCurrentPhase)
	return v, err
}

func (r *CheckpointRepository) SetCurrentPhase(ctx context.Context, phase string) error {
	return r.Set(ctx, schema.CheckpointKeyCurrentPhase, phase)
}

// GetRetentionDefaultDays returns the configured default retention window,
// falling back to schema.DefaultRetentionDays when absent (spec §3).
func (r *CheckpointRepository) GetRetentionDefaultDays(ctx context.Context) (int, error) {
	v, ok, err := r.Get(ctx, schema.CheckpointKeyDefaultRetentionDays)
	if err != nil {
		return 0, err
	}
	if !ok {
		return schema.DefaultRetentionDays, nil
	}
	days, err := strconv.Atoi(v)
	if err != nil {
		return schema.DefaultRetentionDays, nil
	}
	return days, nil
}
