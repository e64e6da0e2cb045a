// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"database/sql"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

var (
	clusterRepoOnce     sync.Once
	clusterRepoInstance *ClusterRepository
)

// ClusterRepository stores the cluster/label engine's (C6) output: one
// row per seed-driven batch of messages labeled together.
type ClusterRepository struct {
	db        *sqlx.DB
	stmtCache *sq.StmtCache
}

func GetClusterRepository() *ClusterRepository {
	clusterRepoOnce.Do(func() {
		conn := GetConnection()
		clusterRepoInstance = &ClusterRepository{db: conn.DB, stmtCache: conn.StmtCache}
	})
	return clusterRepoInstance
}

var clusterColumns = []string{
	"id", "seed_message_id", "similarity_threshold", "labeler_version", "size",
	"frequency_label", "unread_label", "category", "subcategory", "created_at", "updated_at",
}

func (r *ClusterRepository) scan(row interface{ Scan(...interface{}) error }) (*schema.Cluster, error) {
	c := &schema.Cluster{}
	if err := row.Scan(&c.ID, &c.SeedMessageID, &c.Threshold, &c.LabelerVersion, &c.Size,
		&c.FrequencyLabel, &c.UnreadLabel, &c.Category, &c.Subcategory, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

// Insert persists a cluster. id is the caller-supplied deterministic
// UUID v5 derived from the seed message, similarity threshold and
// labeler version (spec §4.2
// step 7 — reproducible ids across reruns).
func (r *ClusterRepository) Insert(ctx context.Context, c *schema.Cluster) error {
	query, args, err := placeholderFormat().
		Insert("clusters").
		Columns("id", "seed_message_id", "similarity_threshold", "labeler_version", "size",
			"frequency_label", "unread_label", "category", "subcategory").
		Values(c.ID, c.SeedMessageID, c.Threshold, c.LabelerVersion, c.Size,
			c.FrequencyLabel, c.UnreadLabel, c.Category, c.Subcategory).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *ClusterRepository) GetByID(ctx context.Context, id string) (*schema.Cluster, error) {
	query, args, err := placeholderFormat().
		Select(clusterColumns...).From("clusters").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, query, args...)
	c, err := r.scan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}
