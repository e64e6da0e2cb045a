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

func TestSlugify(t *testing.T) {
	assert.Equal(t, "commercial-and-marketing", Slugify("Commercial & Marketing"))
	assert.Equal(t, "receipts", Slugify("  Receipts  "))
	assert.Equal(t, "work-professional", Slugify("Work---Professional"))
}

func TestSeedDefaultsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := GetTaxonomyRepository()

	require.NoError(t, r.SeedDefaults(ctx))
	require.NoError(t, r.SeedDefaults(ctx))

	tier1, err := r.ListTier1(ctx)
	require.NoError(t, err)
	assert.Len(t, tier1, len(Tier1Categories))
}

func TestExtendTier2InsertsThenReturnsExisting(t *testing.T) {
	ctx := context.Background()
	r := GetTaxonomyRepository()
	require.NoError(t, r.SeedDefaults(ctx))

	l1, err := r.ExtendTier2(ctx, "financial", "Crypto Receipts", "On-chain purchase receipts")
	require.NoError(t, err)
	require.NotNil(t, l1)
	assert.Equal(t, "financial--crypto-receipts", l1.Slug)

	l2, err := r.ExtendTier2(ctx, "financial", "Crypto Receipts", "duplicate call")
	require.NoError(t, err)
	assert.Equal(t, l1.ID, l2.ID)
}

func TestSetRetentionDaysOverridesThenClears(t *testing.T) {
	ctx := context.Background()
	r := GetTaxonomyRepository()
	require.NoError(t, r.SeedDefaults(ctx))

	l, err := r.GetBySlug(ctx, "financial")
	require.NoError(t, err)
	require.NotNil(t, l)

	days := 30
	require.NoError(t, r.SetRetentionDays(ctx, l.ID, &days))
	updated, err := r.GetByID(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.RetentionDays)
	assert.Equal(t, 30, *updated.RetentionDays)

	require.NoError(t, r.SetRetentionDays(ctx, l.ID, nil))
	cleared, err := r.GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Nil(t, cleared.RetentionDays)
}

func TestSetProviderSyncRecordsStatus(t *testing.T) {
	ctx := context.Background()
	r := GetTaxonomyRepository()
	require.NoError(t, r.SeedDefaults(ctx))

	l, err := r.GetBySlug(ctx, "financial")
	require.NoError(t, err)
	require.NotNil(t, l)

	providerID := "label-123"
	require.NoError(t, r.SetProviderSync(ctx, l.ID, &providerID, "synced"))

	updated, err := r.GetByID(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.ProviderLabelID)
	assert.Equal(t, "label-123", *updated.ProviderLabelID)
	assert.Equal(t, "synced", updated.LastSyncStatus)
}

func TestListByParentReturnsOnlyThatParentsChildren(t *testing.T) {
	ctx := context.Background()
	r := GetTaxonomyRepository()
	require.NoError(t, r.SeedDefaults(ctx))

	children, err := r.ListByParent(ctx, "financial")
	require.NoError(t, err)
	assert.NotEmpty(t, children)
	for _, c := range children {
		require.NotNil(t, c.ParentSlug)
		assert.Equal(t, "financial", *c.ParentSlug)
	}
}
