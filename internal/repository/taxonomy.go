// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

var (
	taxonomyRepoOnce     sync.Once
	taxonomyRepoInstance *TaxonomyRepository
)

// TaxonomyRepository is the two-tier taxonomy store (C4). Tier1 is a
// closed, enforced set seeded at migration time; Tier2 is a preferred but
// evolvable set of subcategories namespaced under a Tier1 parent.
type TaxonomyRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
}

func GetTaxonomyRepository() *TaxonomyRepository {
	taxonomyRepoOnce.Do(func() {
		conn := GetConnection()
		taxonomyRepoInstance = &TaxonomyRepository{db: conn.DB, stmtCache: conn.StmtCache}
	})
	return taxonomyRepoInstance
}

// Tier1Categories is the closed, enforced Tier-1 set. There is
// intentionally no "Unknown" category — every message must resolve to
// one of these.
var Tier1Categories = []string{
	"Financial",
	"Commercial & Marketing",
	"Work & Professional",
	"Personal & Social",
	"Account & Identity",
	"System & Automated",
}

type tier2Seed struct {
	Name        string
	Description string
}

// tier2SeedByCategory is the initial Tier-2 seed used to populate the
// taxonomy table on first run. A strong starting set avoids the model
// picking subcategories at random before any history exists.
var tier2SeedByCategory = map[string][]tier2Seed{
	"Financial": {
		{"Receipts", "One-off purchase confirmations"},
		{"Orders & Purchases", "Order confirmations, purchase details (non-recurring)"},
		{"Payments & Reminders", "Payment due notices, payment reminders, outstanding balance"},
		{"Tickets & Bookings", "Ticketing, bookings, reservations with a financial component"},
		{"Invoices & Bills", "Requests for payment (utilities, services)"},
		{"Statements", "Periodic summaries (bank, credit card, investment)"},
		{"Subscriptions", "Recurring charges (software, media, memberships)"},
		{"Taxes & Legal", "Tax documents, filings, official notices"},
		{"Refunds & Adjustments", "Chargebacks, refunds, corrections"},
	},
	"Commercial & Marketing": {
		{"Newsletters", "Regular informational/promotional mailings"},
		{"Promotions & Offers", "Discounts, sales, limited offers"},
		{"Product Updates", "New features, launches, announcements"},
		{"Events & Webinars", "Invitations, registrations, reminders"},
		{"Surveys & Feedback", "Requests for reviews, ratings, opinions"},
	},
	"Work & Professional": {
		{"Internal Communication", "Colleagues, team updates, internal notices"},
		{"Project & Client Updates", "Deliverables, status reports, coordination"},
		{"Recruitment", "Job applications, recruiters, interviews"},
		{"Professional Networks", "LinkedIn, industry groups, associations"},
		{"Training & Education", "Courses, certifications, learning platforms"},
	},
	"Personal & Social": {
		{"Friends & Family", "Direct personal correspondence"},
		{"Health & Care", "Appointments, results, providers (non-billing)"},
		{"Education", "Schools, universities, learning (non-work)"},
		{"Clubs & Communities", "Hobbies, societies, local groups"},
		{"Travel & Leisure", "Bookings, itineraries, leisure activities (non-financial content)"},
	},
	"Account & Identity": {
		{"Security Alerts", "Login warnings, suspicious activity"},
		{"Authentication", "Password resets, 2FA codes"},
		{"Account Changes", "Email changes, profile updates"},
		{"Policy & Terms", "Terms of service, privacy updates"},
		{"Account Notifications", "General account status messages"},
	},
	"System & Automated": {
		{"Code & DevOps", "GitHub, CI/CD, build systems"},
		{"Monitoring & Alerts", "System health, uptime, errors"},
		{"Forum & Platform Notifications", "Replies, mentions, moderation"},
		{"Scheduled Reports", "Automated digests, summaries"},
		{"Integration Events", "Webhooks, API-driven notifications"},
	},
}

var slugNonAlnum = regexp.MustCompile(`[^a-z0-9]+`)
var slugDashes = regexp.MustCompile(`-+`)

// Slugify turns a label name into a stable, predictable, ASCII-ish slug
// used as the taxonomy_labels unique key.
func Slugify(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.ReplaceAll(v, "&", "and")
	v = slugNonAlnum.ReplaceAllString(v, "-")
	v = slugDashes.ReplaceAllString(v, "-")
	return strings.Trim(v, "-")
}

// SeedDefaults inserts the Tier1 set and the Tier2 seed idempotently
// (slug is UNIQUE; conflicting inserts are no-ops). Called once at
// startup after migrations run.
func (r *TaxonomyRepository) SeedDefaults(ctx context.Context) error {
	for _, name := range Tier1Categories {
		if _, err := r.upsertSeed(ctx, 1, nil, name, ""); err != nil {
			return fmt.Errorf("repository: seed tier1 %q: %w", name, err)
		}
	}
	for parent, children := range tier2SeedByCategory {
		parentSlug := Slugify(parent)
		for _, c := range children {
			if _, err := r.upsertSeed(ctx, 2, &parentSlug, c.Name, c.Description); err != nil {
				return fmt.Errorf("repository: seed tier2 %s/%q: %w", parent, c.Name, err)
			}
		}
	}
	return nil
}

func (r *TaxonomyRepository) upsertSeed(ctx context.Context, level int, parentSlug *string, name, description string) (int64, error) {
	slug := Slugify(name)
	if parentSlug != nil {
		slug = *parentSlug + "--" + slug
	}

	existing, err := r.GetBySlug(ctx, slug)
	if err != nil {
		return 0, err
	}
	if existing != nil {
		return existing.ID, nil
	}

	query, args, err := placeholderFormat().
		Insert("taxonomy_labels").
		Columns("level", "parent_slug", "slug", "name", "description", "active", "last_sync_status").
		Values(level, parentSlug, slug, name, description, true, "pending").
		ToSql()
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *TaxonomyRepository) scan(row interface{ Scan(...interface{}) error }) (*schema.TaxonomyLabel, error) {
	l := &schema.TaxonomyLabel{}
	if err := row.Scan(&l.ID, &l.Level, &l.ParentSlug, &l.Slug, &l.Name, &l.Description,
		&l.RetentionDays, &l.Active, &l.ProviderLabelID, &l.LastSyncStatus, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	return l, nil
}

var taxonomyColumns = []string{
	"id", "level", "parent_slug", "slug", "name", "description",
	"retention_days", "active", "provider_label_id", "last_sync_status", "created_at", "updated_at",
}

func (r *TaxonomyRepository) GetBySlug(ctx context.Context, slug string) (*schema.TaxonomyLabel, error) {
	query, args, err := placeholderFormat().
		Select(taxonomyColumns...).From("taxonomy_labels").Where(sq.Eq{"slug": slug}).ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	l, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return l, err
}

func (r *TaxonomyRepository) GetByID(ctx context.Context, id int64) (*schema.TaxonomyLabel, error) {
	query, args, err := placeholderFormat().
		Select(taxonomyColumns...).From("taxonomy_labels").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	return r.scan(row)
}

// ListByParent returns the active Tier2 labels under a Tier1 parent
// slug, in insertion order — the order the taxonomy prompt renders them.
func (r *TaxonomyRepository) ListByParent(ctx context.Context, parentSlug string) ([]*schema.TaxonomyLabel, error) {
	query, args, err := placeholderFormat().
		Select(taxonomyColumns...).From("taxonomy_labels").
		Where(sq.Eq{"parent_slug": parentSlug, "active": true}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.TaxonomyLabel
	for rows.Next() {
		l, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListTier1 returns the closed Tier1 set in canonical order.
func (r *TaxonomyRepository) ListTier1(ctx context.Context) ([]*schema.TaxonomyLabel, error) {
	query, args, err := placeholderFormat().
		Select(taxonomyColumns...).From("taxonomy_labels").
		Where(sq.Eq{"level": 1}).
		OrderBy("id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.TaxonomyLabel
	for rows.Next() {
		l, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ListAll returns every active label (tier1 + tier2), used to render the
// full taxonomy prompt for the cluster/label engine (C6) and per-message
// labeler (C7).
func (r *TaxonomyRepository) ListAll(ctx context.Context) ([]*schema.TaxonomyLabel, error) {
	query, args, err := placeholderFormat().
		Select(taxonomyColumns...).From("taxonomy_labels").
		Where(sq.Eq{"active": true}).
		OrderBy("level ASC, id ASC").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schema.TaxonomyLabel
	for rows.Next() {
		l, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// ExtendTier2 inserts a brand-new Tier2 label discovered by the model
// when none of the existing subcategories fit (spec §4.2 step 5/6:
// taxonomy extension is persisted so future prompts include it).
func (r *TaxonomyRepository) ExtendTier2(ctx context.Context, parentSlug, name, description string) (*schema.TaxonomyLabel, error) {
	slug := parentSlug + "--" + Slugify(name)

	if existing, err := r.GetBySlug(ctx, slug); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	query, args, err := placeholderFormat().
		Insert("taxonomy_labels").
		Columns("level", "parent_slug", "slug", "name", "description", "active", "last_sync_status").
		Values(2, parentSlug, slug, name, description, true, "pending").
		ToSql()
	if err != nil {
		return nil, err
	}
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository: extend tier2 %q: %w", slug, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// SetRetentionDays overrides the effective retention window for a label.
// A nil days clears the override, falling through to the parent's (or
// the global default's) retention (spec §4.5 COALESCE chain).
func (r *TaxonomyRepository) SetRetentionDays(ctx context.Context, labelID int64, days *int) error {
	query, args, err := placeholderFormat().
		Update("taxonomy_labels").Set("retention_days", days).
		Where(sq.Eq{"id": labelID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// SetProviderSync records the provider-side label id and sync status
// after a successful (or failed) label-creation call against the mail
// provider (spec §4.4).
func (r *TaxonomyRepository) SetProviderSync(ctx context.Context, labelID int64, providerLabelID *string, status string) error {
	query, args, err := placeholderFormat().
		Update("taxonomy_labels").
		Set("provider_label_id", providerLabelID).
		Set("last_sync_status", status).
		Where(sq.Eq{"id": labelID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}
