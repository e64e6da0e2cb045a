// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

var (
	assignmentRepoOnce     sync.Once
	assignmentRepoInstance *AssignmentRepository
)

// AssignmentRepository owns the at-most-one-active message->label edge
// (C8) plus the reconciliation outboxes it feeds (C9).
type AssignmentRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
	driver    string
}

func GetAssignmentRepository() *AssignmentRepository {
	assignmentRepoOnce.Do(func() {
		conn := GetConnection()
		assignmentRepoInstance = &AssignmentRepository{db: conn.DB, stmtCache: conn.StmtCache, driver: conn.Driver}
	})
	return assignmentRepoInstance
}

// Assign upserts the message's active label and enqueues a label-push
// outbox row. The outbox enqueue and the assignment write happen in one
// transaction so a crash between them cannot lose the reconciliation
// intent (spec §5: assignment write and outbox enqueue are atomic).
func (r *AssignmentRepository) Assign(ctx context.Context, messageID, labelID int64, reason string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	upsertQuery, upsertArgs, err := r.upsertAssignmentSQL(messageID, labelID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, upsertQuery, upsertArgs...); err != nil {
		return fmt.Errorf("repository: upsert assignment: %w", err)
	}

	enqueueQuery, enqueueArgs, err := placeholderFormat().
		Insert("label_push_outbox").
		Columns("message_id", "reason", "created_at").
		Values(messageID, reason, time.Now().UTC()).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	// An unprocessed row for this message may already exist (partial
	// unique index); that is fine, the existing row still covers it.
	// ON CONFLICT DO NOTHING skips the insert without failing the
	// statement, so the transaction stays usable on both drivers and the
	// assignment upsert above is still committed.
	if _, err := tx.ExecContext(ctx, enqueueQuery, enqueueArgs...); err != nil {
		return fmt.Errorf("repository: enqueue label push: %w", err)
	}

	return tx.Commit()
}

func (r *AssignmentRepository) upsertAssignmentSQL(messageID, labelID int64) (string, []interface{}, error) {
	if r.driver == "postgres" {
		return placeholderFormat().
			Insert("assignments").
			Columns("message_id", "label_id").
			Values(messageID, labelID).
			Suffix("ON CONFLICT (message_id) DO UPDATE SET label_id = EXCLUDED.label_id").
			ToSql()
	}
	return placeholderFormat().
		Insert("assignments").
		Columns("message_id", "label_id").
		Values(messageID, labelID).
		Suffix("ON CONFLICT (message_id) DO UPDATE SET label_id = excluded.label_id").
		ToSql()
}

func (r *AssignmentRepository) GetByMessageID(ctx context.Context, messageID int64) (*schema.Assignment, error) {
	query, args, err := placeholderFormat().
		Select("id", "message_id", "label_id", "created_at").
		From("assignments").Where(sq.Eq{"message_id": messageID}).ToSql()
	if err != nil {
		return nil, err
	}
	a := &schema.Assignment{}
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := row.Scan(&a.ID, &a.MessageID, &a.LabelID, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return a, nil
}

// NextUnprocessedLabelPush claims one unprocessed label-push outbox row,
// oldest first, for the label-push worker (C9).
func (r *AssignmentRepository) NextUnprocessedLabelPush(ctx context.Context) (*schema.LabelPushOutboxRow, error) {
	query, args, err := placeholderFormat().
		Select("id", "message_id", "reason", "created_at", "processed_at", "error").
		From("label_push_outbox").
		Where(sq.Eq{"processed_at": nil}).
		OrderBy("created_at ASC, id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	out := &schema.LabelPushOutboxRow{}
	if err := row.Scan(&out.ID, &out.MessageID, &out.Reason, &out.CreatedAt, &out.ProcessedAt, &out.Error); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return out, nil
}

// MarkLabelPushProcessed stamps processed_at (success) and clears any
// prior error.
func (r *AssignmentRepository) MarkLabelPushProcessed(ctx context.Context, id int64) error {
	query, args, err := placeholderFormat().
		Update("label_push_outbox").
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

// MarkLabelPushFailed records a terminal error on the row without
// advancing processed_at, so the row stays eligible for future retry
// sweeps (spec §7: outbox rows never silently drop).
func (r *AssignmentRepository) MarkLabelPushFailed(ctx context.Context, id int64, errMsg string) error {
	query, args, err := placeholderFormat().
		Update("label_push_outbox").
		Set("error", errMsg).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *AssignmentRepository) CountUnprocessedLabelPush(ctx context.Context) (int, error) {
	return r.countUnprocessed(ctx, "label_push_outbox")
}

func (r *AssignmentRepository) countUnprocessed(ctx context.Context, table string) (int, error) {
	query, args, err := placeholderFormat().
		Select("COUNT(*)").From(table).Where(sq.Eq{"processed_at": nil}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}
