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

func TestUpsertMetadataInsertsThenUpdatesInPlace(t *testing.T) {
	ctx := context.Background()
	mr := GetMessageRepository()

	id, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-upsert-1",
		ThreadID:   "thread-1",
		Timestamp:  time.Now().UTC(),
		Subject:    "Original Subject",
	})
	require.NoError(t, err)

	id2, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-upsert-1",
		ThreadID:   "thread-1",
		Timestamp:  time.Now().UTC(),
		Subject:    "Updated Subject",
	})
	require.NoError(t, err)
	assert.Equal(t, id, id2)

	got, err := mr.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Updated Subject", got.Subject)
}

func TestUpdateClassificationIsWriteOnce(t *testing.T) {
	ctx := context.Background()
	mr := GetMessageRepository()

	id, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-writeonce-1",
		ThreadID:   "thread-2",
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)

	affected, err := mr.UpdateClassification(ctx, []int64{id}, nil, "Financial", nil, "v1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, affected)

	sub := "Invoices"
	affected2, err := mr.UpdateClassification(ctx, []int64{id}, nil, "Personal & Social", &sub, "v1")
	require.NoError(t, err)
	assert.EqualValues(t, 0, affected2, "category already set, second write must be a no-op")

	got, err := mr.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.Category)
	assert.Equal(t, "Financial", *got.Category)
}

func TestFindOldestUnlabelledNonTrashExcludesTrash(t *testing.T) {
	ctx := context.Background()
	mr := GetMessageRepository()

	old := time.Now().AddDate(0, 0, -10)
	_, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID:     "msg-trash-1",
		ThreadID:       "thread-trash",
		Timestamp:      old,
		ProviderLabels: []string{"TRASH"},
	})
	require.NoError(t, err)

	notTrashID, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-nontrash-1",
		ThreadID:   "thread-nontrash",
		Timestamp:  old.Add(time.Minute),
	})
	require.NoError(t, err)

	found, err := mr.FindOldestUnlabelledNonTrash(ctx)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.NotEqual(t, "msg-trash-1", found.ProviderID)
	_ = notTrashID
}

func TestCountUnlabelledReflectsClassificationWrites(t *testing.T) {
	ctx := context.Background()
	mr := GetMessageRepository()

	before, err := mr.CountUnlabelled(ctx)
	require.NoError(t, err)

	id, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-count-1",
		ThreadID:   "thread-count",
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)

	mid, err := mr.CountUnlabelled(ctx)
	require.NoError(t, err)
	assert.Equal(t, before+1, mid)

	_, err = mr.UpdateClassification(ctx, []int64{id}, nil, "Financial", nil, "v1")
	require.NoError(t, err)

	after, err := mr.CountUnlabelled(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestMarkArchivedStampsArchivedAt(t *testing.T) {
	ctx := context.Background()
	mr := GetMessageRepository()

	id, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-archive-1",
		ThreadID:   "thread-archive",
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, mr.MarkArchived(ctx, id, now))

	got, err := mr.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.ArchivedAt)
}

func TestFindOlderThanUnarchivedOnlyReturnsOldUnarchived(t *testing.T) {
	ctx := context.Background()
	mr := GetMessageRepository()

	cutoff := time.Now().AddDate(-1, 0, 0)
	oldID, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-retention-old-1",
		ThreadID:   "thread-retention",
		Timestamp:  cutoff.AddDate(0, -1, 0),
	})
	require.NoError(t, err)

	_, err = mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-retention-new-1",
		ThreadID:   "thread-retention",
		Timestamp:  time.Now().UTC(),
	})
	require.NoError(t, err)

	out, err := mr.FindOlderThanUnarchived(ctx, cutoff, 100)
	require.NoError(t, err)

	var sawOld bool
	for _, m := range out {
		if m.ID == oldID {
			sawOld = true
		}
		assert.True(t, m.Timestamp.Before(cutoff))
	}
	assert.True(t, sawOld)
}

func TestFindUnlabelledBySenderDomainExcludesGivenID(t *testing.T) {
	ctx := context.Background()
	mr := GetMessageRepository()

	id1, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-domain-1", ThreadID: "t", Timestamp: time.Now().UTC(), FromDomain: "vendor.example.com",
	})
	require.NoError(t, err)
	id2, err := mr.UpsertMetadata(ctx, &schema.Message{
		ProviderID: "msg-domain-2", ThreadID: "t", Timestamp: time.Now().UTC(), FromDomain: "vendor.example.com",
	})
	require.NoError(t, err)

	out, err := mr.FindUnlabelledBySenderDomain(ctx, "vendor.example.com", id1)
	require.NoError(t, err)

	var sawID2, sawID1 bool
	for _, m := range out {
		if m.ID == id2 {
			sawID2 = true
		}
		if m.ID == id1 {
			sawID1 = true
		}
	}
	assert.True(t, sawID2)
	assert.False(t, sawID1)
}
