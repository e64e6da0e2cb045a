// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEffectiveRetentionDaysPrefersOwnOverParentOverDefault(t *testing.T) {
	ctx := context.Background()
	tr := GetTaxonomyRepository()
	rr := GetRetentionRepository()
	require.NoError(t, tr.SeedDefaults(ctx))

	parent, err := tr.GetBySlug(ctx, "financial")
	require.NoError(t, err)
	require.NotNil(t, parent)

	child, err := tr.ExtendTier2(ctx, "financial", "Retention Test Child", "")
	require.NoError(t, err)

	days, err := rr.EffectiveRetentionDays(ctx, child, 730)
	require.NoError(t, err)
	assert.Equal(t, 730, days)

	parentDays := 400
	require.NoError(t, tr.SetRetentionDays(ctx, parent.ID, &parentDays))
	parentReloaded, err := tr.GetByID(ctx, parent.ID)
	require.NoError(t, err)
	childReloaded, err := tr.GetBySlug(ctx, child.Slug)
	require.NoError(t, err)

	days2, err := rr.EffectiveRetentionDays(ctx, childReloaded, 730)
	require.NoError(t, err)
	assert.Equal(t, 400, days2)

	ownDays := 30
	require.NoError(t, tr.SetRetentionDays(ctx, childReloaded.ID, &ownDays))
	childWithOwn, err := tr.GetByID(ctx, childReloaded.ID)
	require.NoError(t, err)

	days3, err := rr.EffectiveRetentionDays(ctx, childWithOwn, 730)
	require.NoError(t, err)
	assert.Equal(t, 30, days3)

	_ = parentReloaded
}

func TestPlanThenMarkProcessedThenReplanResetsToPending(t *testing.T) {
	ctx := context.Background()
	rr := GetRetentionRepository()
	msgID := insertTestMessage(t, "retention-plan-1")

	require.NoError(t, rr.Plan(ctx, msgID, "expired"))
	row, err := rr.NextUnprocessed(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, msgID, row.MessageID)

	require.NoError(t, rr.MarkProcessed(ctx, row.ID))
	after, err := rr.NextUnprocessed(ctx)
	require.NoError(t, err)
	if after != nil {
		assert.NotEqual(t, row.ID, after.ID)
	}

	require.NoError(t, rr.Plan(ctx, msgID, "expired-again"))
	reset, err := rr.NextUnprocessed(ctx)
	require.NoError(t, err)
	require.NotNil(t, reset)
	assert.Equal(t, msgID, reset.MessageID)
	assert.Equal(t, "expired-again", reset.Reason)
}

func TestMarkFailedKeepsArchivePushUnprocessed(t *testing.T) {
	ctx := context.Background()
	rr := GetRetentionRepository()
	msgID := insertTestMessage(t, "retention-fail-1")

	require.NoError(t, rr.Plan(ctx, msgID, "expired"))
	before, err := rr.CountUnprocessed(ctx)
	require.NoError(t, err)

	row, err := rr.NextUnprocessed(ctx)
	require.NoError(t, err)
	require.NotNil(t, row)

	require.NoError(t, rr.MarkFailed(ctx, row.ID, "trash rpc failed"))
	after, err := rr.CountUnprocessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
