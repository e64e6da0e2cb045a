// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package retention

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

func init() {
	dir, err := os.MkdirTemp("", "mailpipe-retention-test")
	if err != nil {
		panic(err)
	}
	if err := repository.Connect("sqlite3", filepath.Join(dir, "test.db")); err != nil {
		panic(err)
	}
	if err := repository.Migrate("sqlite3", repository.GetConnection().DB.DB); err != nil {
		panic(err)
	}
}

func newSweeper(t *testing.T) *Sweeper {
	t.Helper()
	require.NoError(t, repository.GetTaxonomyRepository().SeedDefaults(context.Background()))
	return &Sweeper{
		Messages:   repository.GetMessageRepository(),
		Taxonomy:   repository.GetTaxonomyRepository(),
		Retention:  repository.GetRetentionRepository(),
		Checkpoint: repository.GetCheckpointRepository(),
	}
}

func TestSweepPlansArchivePushForExpiredUnclassifiedMessage(t *testing.T) {
	ctx := context.Background()
	s := newSweeper(t)
	mr := repository.GetMessageRepository()

	old := time.Now().AddDate(-3, 0, 0)
	id, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "sweep-expired-1",
		ThreadID:   "t",
		Timestamp:  old,
	})
	require.NoError(t, err)

	result, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Inspected, 1)
	assert.GreaterOrEqual(t, result.Planned, 1)

	row, err := s.Retention.NextUnprocessed(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, id, row.MessageID)
}

func TestSweepSkipsMessageWithinRetentionWindow(t *testing.T) {
	ctx := context.Background()
	s := newSweeper(t)
	mr := repository.GetMessageRepository()

	recent := time.Now().AddDate(0, 0, -2)
	_, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "sweep-recent-1",
		ThreadID:   "t",
		Timestamp:  recent,
	})
	require.NoError(t, err)

	result, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Planned, "a two-day-old message must not be planned under the two-year default")
}

func TestSweepUsesLabelOverrideRetentionDays(t *testing.T) {
	ctx := context.Background()
	s := newSweeper(t)
	mr := repository.GetMessageRepository()

	label, err := s.Taxonomy.GetBySlug(ctx, "financial")
	require.NoError(t, err)
	require.NotNil(t, label)
	require.NoError(t, s.Taxonomy.SetRetentionDays(ctx, label.ID, intPtr(5)))
	t.Cleanup(func() { _ = s.Taxonomy.SetRetentionDays(ctx, label.ID, nil) })

	category := "Financial"
	old := time.Now().AddDate(0, 0, -10)
	id, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "sweep-override-1",
		ThreadID:   "t",
		Timestamp:  old,
	})
	require.NoError(t, err)
	_, err = mr.UpdateClassification(ctx, []int64{id}, nil, category, nil, "v1")
	require.NoError(t, err)

	result, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, result.Planned, 1)

	var sawPlanned bool
	for {
		row, err := s.Retention.NextUnprocessed(ctx)
		require.NoError(t, err)
		if row == nil {
			break
		}
		if row.MessageID == id {
			sawPlanned = true
		}
		require.NoError(t, s.Retention.MarkProcessed(ctx, row.ID))
	}
	assert.True(t, sawPlanned)
}

func intPtr(i int) *int { return &i }
