// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

func insertTestMessage(t *testing.T, providerID string) int64 {
	t.Helper()
	mr := GetMessageRepository()
	id, err := mr.UpsertMetadata(context.Background(), &schema.Message{
		ProviderID: providerID,
		ThreadID:   "thread-" + providerID,
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func firstTier1LabelID(t *testing.T) int64 {
	t.Helper()
	ctx := context.Background()
	tr := GetTaxonomyRepository()
	require.NoError(t, tr.SeedDefaults(ctx))
	l, err := tr.GetBySlug(ctx, "financial")
	require.NoError(t, err)
	require.NotNil(t, l)
	return l.ID
}

// TestAssignCommitsWhenOutboxRowAlreadyExists guards against a
// regression where the unique-index conflict branch on the
// label_push_outbox insert returned before committing the transaction,
// silently dropping the assignment upsert whenever an unprocessed
// outbox row already covered the message.
func TestAssignCommitsWhenOutboxRowAlreadyExists(t *testing.T) {
	ctx := context.Background()
	ar := GetAssignmentRepository()
	labelID := firstTier1LabelID(t)
	msgID := insertTestMessage(t, "assign-conflict-1")

	require.NoError(t, ar.Assign(ctx, msgID, labelID, "initial"))

	secondLabel, err := GetTaxonomyRepository().ExtendTier2(ctx, "financial", "Repeat Assign Test", "")
	require.NoError(t, err)

	require.NoError(t, ar.Assign(ctx, msgID, secondLabel.ID, "relabel"))

	got, err := ar.GetByMessageID(ctx, msgID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, secondLabel.ID, got.LabelID)
}

func TestAssignEnqueuesLabelPushOutboxRow(t *testing.T) {
	ctx := context.Background()
	ar := GetAssignmentRepository()
	labelID := firstTier1LabelID(t)
	msgID := insertTestMessage(t, "assign-enqueue-1")

	before, err := ar.CountUnprocessedLabelPush(ctx)
	require.NoError(t, err)

	require.NoError(t, ar.Assign(ctx, msgID, labelID, "initial"))

	after, err := ar.CountUnprocessedLabelPush(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, after)
}

func TestNextUnprocessedLabelPushClaimsOldestFirst(t *testing.T) {
	ctx := context.Background()
	ar := GetAssignmentRepository()
	labelID := firstTier1LabelID(t)

	msgA := insertTestMessage(t, "assign-order-a")
	require.NoError(t, ar.Assign(ctx, msgA, labelID, "a"))

	row, err := ar.NextUnprocessedLabelPush(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)

	require.NoError(t, ar.MarkLabelPushProcessed(ctx, row.ID))

	after, err := ar.NextUnprocessedLabelPush(ctx)
	require.NoError(t, err)
	if after != nil {
		assert.NotEqual(t, row.ID, after.ID)
	}
}

func TestMarkLabelPushFailedKeepsRowEligible(t *testing.T) {
	ctx := context.Background()
	ar := GetAssignmentRepository()
	labelID := firstTier1LabelID(t)
	msgID := insertTestMessage(t, "assign-fail-1")
	require.NoError(t, ar.Assign(ctx, msgID, labelID, "initial"))

	row, err := ar.NextUnprocessedLabelPush(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)

	require.NoError(t, ar.MarkLabelPushFailed(ctx, row.ID, "provider unavailable"))

	still, err := ar.CountUnprocessedLabelPush(ctx)
	require.NoError(t, err)
	assert.True(t, still >= 1)
}
