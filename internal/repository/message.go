// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

var (
	messageRepoOnce     sync.Once
	messageRepoInstance *MessageRepository
)

// MessageRepository is the canonical message store (C2). It owns all
// other relational entities via foreign keys.
type MessageRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
	driver    string
}

func GetMessageRepository() *MessageRepository {
	messageRepoOnce.Do(func() {
		conn := GetConnection()
		messageRepoInstance = &MessageRepository{db: conn.DB, stmtCache: conn.StmtCache, driver: conn.Driver}
	})
	return messageRepoInstance
}

// stringArray marshals a []string into whatever column representation the
// active driver needs: native TEXT[] on postgres, a JSON string on sqlite3.
func (r *MessageRepository) stringArray(values []string) interface{} {
	if r.driver == "postgres" {
		return pqStringArray(values)
	}
	raw, _ := json.Marshal(values)
	return string(raw)
}

// UpsertMetadata inserts a new message or updates an existing one in place
// keyed by provider_id (handles provider drift where a previously-seen id
// reappears with a later timestamp, spec §4.1 edge cases). Never touches
// category/subcategory/cluster_id — those are write-once via UpdateClassification.
func (r *MessageRepository) UpsertMetadata(ctx context.Context, m *schema.Message) (int64, error) {
	now := time.Now().UTC()

	if r.driver == "postgres" {
		query, args, err := placeholderFormat().
			Insert("messages").
			Columns("provider_id", "thread_id", "timestamp", "is_unread", "provider_labels",
				"from_address", "from_domain", "to_addresses", "cc_addresses",
				"subject", "subject_normalized", "created_at", "updated_at").
			Values(m.ProviderID, m.ThreadID, m.Timestamp, m.IsUnread, r.stringArray(m.ProviderLabels),
				m.FromAddress, m.FromDomain, r.stringArray(m.ToAddresses), r.stringArray(m.CcAddresses),
				m.Subject, m.SubjectNormalized, now, now).
			Suffix(`ON CONFLICT (provider_id) DO UPDATE SET
				thread_id = EXCLUDED.thread_id,
				timestamp = EXCLUDED.timestamp,
				is_unread = EXCLUDED.is_unread,
				provider_labels = EXCLUDED.provider_labels,
				from_address = EXCLUDED.from_address,
				from_domain = EXCLUDED.from_domain,
				to_addresses = EXCLUDED.to_addresses,
				cc_addresses = EXCLUDED.cc_addresses,
				subject = EXCLUDED.subject,
				subject_normalized = EXCLUDED.subject_normalized,
				updated_at = EXCLUDED.updated_at
				RETURNING id`).
			ToSql()
		if err != nil {
			return 0, err
		}
		var id int64
		if err := r.db.GetContext(ctx, &id, query, args...); err != nil {
			return 0, fmt.Errorf("repository: upsert message %s: %w", m.ProviderID, err)
		}
		return id, nil
	}

	// sqlite3: emulate upsert without RETURNING support in all builds.
	query, args, err := placeholderFormat().
		Insert("messages").
		Columns("provider_id", "thread_id", "timestamp", "is_unread", "provider_labels",
			"from_address", "from_domain", "to_addresses", "cc_addresses",
			"subject", "subject_normalized", "created_at", "updated_at").
		Values(m.ProviderID, m.ThreadID, m.Timestamp, m.IsUnread, r.stringArray(m.ProviderLabels),
			m.FromAddress, m.FromDomain, r.stringArray(m.ToAddresses), r.stringArray(m.CcAddresses),
			m.Subject, m.SubjectNormalized, now, now).
		Suffix(`ON CONFLICT (provider_id) DO UPDATE SET
			thread_id = excluded.thread_id,
			timestamp = excluded.timestamp,
			is_unread = excluded.is_unread,
			provider_labels = excluded.provider_labels,
			from_address = excluded.from_address,
			from_domain = excluded.from_domain,
			to_addresses = excluded.to_addresses,
			cc_addresses = excluded.cc_addresses,
			subject = excluded.subject,
			subject_normalized = excluded.subject_normalized,
			updated_at = excluded.updated_at`).
		ToSql()
	if err != nil {
		return 0, err
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("repository: upsert message %s: %w", m.ProviderID, err)
	}

	existing, err := r.GetByProviderID(ctx, m.ProviderID)
	if err != nil {
		return 0, err
	}
	return existing.ID, nil
}

func (r *MessageRepository) scan(row interface{ Scan(...interface{}) error }) (*schema.Message, error) {
	m := &schema.Message{}
	var providerLabels, toAddrs, ccAddrs interface{}

	if err := row.Scan(&m.ID, &m.ProviderID, &m.ThreadID, &m.Timestamp, &m.IsUnread,
		&providerLabels, &m.FromAddress, &m.FromDomain, &toAddrs, &ccAddrs,
		&m.Subject, &m.SubjectNormalized, &m.Category, &m.Subcategory, &m.LabelerVersion,
		&m.ClusterID, &m.ArchivedAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if m.ProviderLabels, err = r.decodeArray(providerLabels); err != nil {
		return nil, err
	}
	if m.ToAddresses, err = r.decodeArray(toAddrs); err != nil {
		return nil, err
	}
	if m.CcAddresses, err = r.decodeArray(ccAddrs); err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepository) decodeArray(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []byte:
		if r.driver == "postgres" {
			return pqParseStringArray(string(v)), nil
		}
		var out []string
		if len(v) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, err
		}
		return out, nil
	case string:
		if r.driver == "postgres" {
			return pqParseStringArray(v), nil
		}
		var out []string
		if v == "" {
			return nil, nil
		}
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("repository: unexpected array column type %T", raw)
	}
}

var messageColumns = []string{
	"id", "provider_id", "thread_id", "timestamp", "is_unread", "provider_labels",
	"from_address", "from_domain", "to_addresses", "cc_addresses",
	"subject", "subject_normalized", "category", "subcategory", "labeler_version",
	"cluster_id", "archived_at", "created_at", "updated_at",
}

func (r *MessageRepository) GetByID(ctx context.Context, id int64) (*schema.Message, error) {
	query, args, err := placeholderFormat().
		Select(messageColumns...).From("messages").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	return r.scan(row)
}

func (r *MessageRepository) GetByProviderID(ctx context.Context, providerID string) (*schema.Message, error) {
	query, args, err := placeholderFormat().
		Select(messageColumns...).From("messages").Where(sq.Eq{"provider_id": providerID}).ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	return r.scan(row)
}

// FindOldestUnlabelledNonTrash returns the oldest unlabelled message that
// is not in the provider's trash (seed selection, spec §4.2 step 1).
func (r *MessageRepository) FindOldestUnlabelledNonTrash(ctx context.Context) (*schema.Message, error) {
	q := placeholderFormat().
		Select(messageColumns...).From("messages").
		Where(sq.Eq{"category": nil}).
		OrderBy("timestamp ASC").
		Limit(1)

	q = r.excludeTrash(q)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	m, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepository) excludeTrash(q sq.SelectBuilder) sq.SelectBuilder {
	if r.driver == "postgres" {
		return q.Where("NOT ('TRASH' = ANY(provider_labels))")
	}
	return q.Where("provider_labels NOT LIKE '%\"TRASH\"%'")
}

// FindUnlabelledBySenderDomain returns other unlabelled, non-trash messages
// sharing fromDomain, excluding excludeID (candidate assembly step, §4.2.2).
func (r *MessageRepository) FindUnlabelledBySenderDomain(ctx context.Context, fromDomain string, excludeID int64) ([]*schema.Message, error) {
	q := placeholderFormat().
		Select(messageColumns...).From("messages").
		Where(sq.Eq{"category": nil, "from_domain": fromDomain}).
		Where(sq.NotEq{"id": excludeID}).
		OrderBy("timestamp ASC, id ASC")
	q = r.excludeTrash(q)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.Message
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountUnlabelled returns the number of messages with no category yet —
// used to choose between the cluster engine (C6) and the per-message
// labeler (C7), spec §4.3.
func (r *MessageRepository) CountUnlabelled(ctx context.Context) (int, error) {
	query, args, err := placeholderFormat().
		Select("COUNT(*)").From("messages").Where(sq.Eq{"category": nil}).ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// UpdateClassification sets cluster/category/subcategory/labeler_version
// on every listed message id, but only where category is still NULL
// (first-writer-wins, spec §5 ordering guarantees).
func (r *MessageRepository) UpdateClassification(ctx context.Context, ids []int64, clusterID *string, category string, subcategory *string, labelerVersion string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	query, args, err := placeholderFormat().
		Update("messages").
		Set("cluster_id", clusterID).
		Set("category", category).
		Set("subcategory", subcategory).
		Set("labeler_version", labelerVersion).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": ids}).
		Where(sq.Eq{"category": nil}).
		ToSql()
	if err != nil {
		return 0, err
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("repository: update classification: %w", err)
	}
	return res.RowsAffected()
}

// ListRecentBySender returns the most recent `limit` messages sent by
// fromAddress, used by the per-message labeler to synthesize frequency and
// unread-ratio labels without a full cluster (spec §4.3).
func (r *MessageRepository) ListRecentBySender(ctx context.Context, fromAddress string, limit int) ([]*schema.Message, error) {
	query, args, err := placeholderFormat().
		Select(messageColumns...).From("messages").
		Where(sq.Eq{"from_address": fromAddress}).
		OrderBy("timestamp DESC").
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

	var out []*schema.Message
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListByCategories returns messages in the given categories whose
// timestamp falls within [since, now), used to select extractor input
// slices (spec §4.6).
func (r *MessageRepository) ListByCategories(ctx context.Context, categories []string, since time.Time, limit int) ([]*schema.Message, error) {
	query, args, err := placeholderFormat().
		Select(messageColumns...).From("messages").
		Where(sq.Eq{"category": categories}).
		Where(sq.GtOrEq{"timestamp": since}).
		OrderBy("timestamp DESC").
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

	var out []*schema.Message
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkArchived stamps archived_at on a message after a successful
// archive-push (spec §4.4).
func (r *MessageRepository) MarkArchived(ctx context.Context, id int64, at time.Time) error {
	query, args, err := placeholderFormat().
		Update("messages").Set("archived_at", at).Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// FindOlderThanUnarchived returns up to limit unarchived messages older
// than cutoff, oldest first, used by the retention planner (C10). It
// applies only the raw cutoff; the planner resolves each message's
// effective retention window itself.
func (r *MessageRepository) FindOlderThanUnarchived(ctx context.Context, cutoff time.Time, limit int) ([]*schema.Message, error) {
	query, args, err := placeholderFormat().
		Select(messageColumns...).From("messages").
		Where(sq.Lt{"timestamp": cutoff}).
		Where(sq.Eq{"archived_at": nil}).
		OrderBy("timestamp ASC").
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

	var out []*schema.Message
	for rows.Next() {
		m, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
