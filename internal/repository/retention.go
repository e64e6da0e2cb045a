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
	retentionRepoOnce     sync.Once
	retentionRepoInstance *RetentionRepository
)

// RetentionRepository owns the archive-push outbox (C9/C10): one pending
// or processed row per message that the retention planner has decided
// should be archived at the provider.
type RetentionRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
	driver    string
}

func GetRetentionRepository() *RetentionRepository {
	retentionRepoOnce.Do(func() {
		conn := GetConnection()
		retentionRepoInstance = &RetentionRepository{db: conn.DB, stmtCache: conn.StmtCache, driver: conn.Driver}
	})
	return retentionRepoInstance
}

// EffectiveRetentionDays resolves the COALESCE chain for a label:
// label.retention_days, else parent.retention_days, else the configured
// default (spec §4.5).
func (r *RetentionRepository) EffectiveRetentionDays(ctx context.Context, label *schema.TaxonomyLabel, defaultDays int) (int, error) {
	if label == nil {
		return defaultDays, nil
	}
	if label.RetentionDays != nil {
		return *label.RetentionDays, nil
	}
	if label.ParentSlug != nil {
		parent, err := GetTaxonomyRepository().GetBySlug(ctx, *label.ParentSlug)
		if err != nil {
			return 0, err
		}
		if parent != nil && parent.RetentionDays != nil {
			return *parent.RetentionDays, nil
		}
	}
	return defaultDays, nil
}

// Plan upserts an archive-push outbox row for messageID. Replanning an
// already-processed row resets it back to pending (processed_at/error
// cleared) so a later retention-window change can still reach the
// provider (spec §4.5 edge case: retention shortened after archival already ran).
func (r *RetentionRepository) Plan(ctx context.Context, messageID int64, reason string) error {
	if r.driver == "postgres" {
		query, args, err := placeholderFormat().
			Insert("archive_push_outbox").
			Columns("message_id", "reason", "created_at").
			Values(messageID, reason, time.Now().UTC()).
			Suffix(`ON CONFLICT (message_id) DO UPDATE SET
				reason = EXCLUDED.reason, processed_at = NULL, error = NULL`).
			ToSql()
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx, query, args...)
		return err
	}

	query, args, err := placeholderFormat().
		Insert("archive_push_outbox").
		Columns("message_id", "reason", "created_at").
		Values(messageID, reason, time.Now().UTC()).
		Suffix(`ON CONFLICT (message_id) DO UPDATE SET
			reason = excluded.reason, processed_at = NULL, error = NULL`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *RetentionRepository) NextUnprocessed(ctx context.Context) (*schema.ArchivePushOutboxRow, error) {
	query, args, err := placeholderFormat().
		Select("id", "message_id", "reason", "created_at", "processed_at", "error").
		From("archive_push_outbox").
		Where(sq.Eq{"processed_at": nil}).
		OrderBy("created_at ASC, id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	out := &schema.ArchivePushOutboxRow{}
	if err := row.Scan(&out.ID, &out.MessageID, &out.Reason, &out.CreatedAt, &out.ProcessedAt, &out.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

func (r *RetentionRepository) MarkProcessed(ctx context.Context, id int64) error {
	query, args, err := placeholderFormat().
		Update("archive_push_outbox").
		Set("processed_at", time.Now().UTC()).
		Set("error", nil).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *RetentionRepository) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	query, args, err := placeholderFormat().
		Update("archive_push_outbox").
		Set("error", errMsg).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *RetentionRepository) CountUnprocessed(ctx context.Context) (int, error) {
	query, args, err := placeholderFormat().
		Select("COUNT(*)").From("archive_push_outbox").Where(sq.Eq{"processed_at": nil}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}
