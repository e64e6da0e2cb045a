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
	paymentRepoOnce     sync.Once
	paymentRepoInstance *PaymentRepository
)

// PaymentRepository stores the payment extractor's (C11) output, one row
// per message it has been run against.
type PaymentRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
	driver    string
}

func GetPaymentRepository() *PaymentRepository {
	paymentRepoOnce.Do(func() {
		conn := GetConnection()
		paymentRepoInstance = &PaymentRepository{db: conn.DB, stmtCache: conn.StmtCache, driver: conn.Driver}
	})
	return paymentRepoInstance
}

var paymentColumns = []string{
	"message_id", "status", "item_name", "vendor_name", "item_category", "amount_minor", "currency",
	"is_recurring", "frequency", "payment_date", "fingerprint",
	"model", "prompt_version", "raw_output", "error", "created_at", "updated_at",
}

func (r *PaymentRepository) scan(row interface{ Scan(...interface{}) error }) (*schema.PaymentRecord, error) {
	p := &schema.PaymentRecord{}
	if err := row.Scan(&p.MessageID, &p.Status, &p.ItemName, &p.VendorName, &p.ItemCategory,
		&p.AmountMinor, &p.Currency, &p.IsRecurring, &p.Frequency, &p.PaymentDate, &p.Fingerprint,
		&p.Model, &p.PromptVersion, &p.RawOutput, &p.Error, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

func (r *PaymentRepository) Upsert(ctx context.Context, p *schema.PaymentRecord) error {
	now := time.Now().UTC()
	cols := []string{"message_id", "status", "item_name", "vendor_name", "item_category", "amount_minor",
		"currency", "is_recurring", "frequency", "payment_date", "fingerprint",
		"model", "prompt_version", "raw_output", "error", "created_at", "updated_at"}
	vals := []interface{}{p.MessageID, p.Status, p.ItemName, p.VendorName, p.ItemCategory, p.AmountMinor,
		p.Currency, p.IsRecurring, p.Frequency, p.PaymentDate, p.Fingerprint,
		p.Model, p.PromptVersion, p.RawOutput, p.Error, now, now}

	var suffix string
	if r.driver == "postgres" {
		suffix = `ON CONFLICT (message_id) DO UPDATE SET
			status = EXCLUDED.status, item_name = EXCLUDED.item_name, vendor_name = EXCLUDED.vendor_name,
			item_category = EXCLUDED.item_category, amount_minor = EXCLUDED.amount_minor, currency = EXCLUDED.currency,
			is_recurring = EXCLUDED.is_recurring, frequency = EXCLUDED.frequency, payment_date = EXCLUDED.payment_date,
			fingerprint = EXCLUDED.fingerprint, model = EXCLUDED.model, prompt_version = EXCLUDED.prompt_version,
			raw_output = EXCLUDED.raw_output, error = EXCLUDED.error, updated_at = EXCLUDED.updated_at`
	} else {
		suffix = `ON CONFLICT (message_id) DO UPDATE SET
			status = excluded.status, item_name = excluded.item_name, vendor_name = excluded.vendor_name,
			item_category = excluded.item_category, amount_minor = excluded.amount_minor, currency = excluded.currency,
			is_recurring = excluded.is_recurring, frequency = excluded.frequency, payment_date = excluded.payment_date,
			fingerprint = excluded.fingerprint, model = excluded.model, prompt_version = excluded.prompt_version,
			raw_output = excluded.raw_output, error = excluded.error, updated_at = excluded.updated_at`
	}

	query, args, err := placeholderFormat().Insert("payment_records").Columns(cols...).Values(vals...).Suffix(suffix).ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *PaymentRepository) GetByMessageID(ctx context.Context, messageID int64) (*schema.PaymentRecord, error) {
	query, args, err := placeholderFormat().Select(paymentColumns...).From("payment_records").
		Where(sq.Eq{"message_id": messageID}).ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	p, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// FindByFingerprint looks up an existing payment by its dedup
// fingerprint (`normalized(vendor)|amount|currency|isodate`), used to
// suppress duplicate recurring-charge rows (spec §4.6.2).
func (r *PaymentRepository) FindByFingerprint(ctx context.Context, fingerprint string) (*schema.PaymentRecord, error) {
	query, args, err := placeholderFormat().Select(paymentColumns...).From("payment_records").
		Where(sq.Eq{"fingerprint": fingerprint}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	p, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ListRecurring returns payments flagged recurring, most recent first —
// used to build a subscriptions summary.
func (r *PaymentRepository) ListRecurring(ctx context.Context, limit int) ([]*schema.PaymentRecord, error) {
	query, args, err := placeholderFormat().Select(paymentColumns...).From("payment_records").
		Where(sq.Eq{"is_recurring": true, "status": schema.EventStatusSucceeded}).
		OrderBy("created_at DESC").
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

	var out []*schema.PaymentRecord
	for rows.Next() {
		p, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
