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

func TestEventUpsertThenGetByMessageID(t *testing.T) {
	ctx := context.Background()
	er := GetEventRepository()
	msgID := insertTestMessage(t, "event-upsert-1")

	name := "Hamlet"
	date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	start := "19:00"
	require.NoError(t, er.Upsert(ctx, &schema.EventRecord{
		MessageID: msgID,
		Status:    schema.EventStatusSucceeded,
		EventName: &name,
		EventDate: &date,
		StartTime: &start,
		Model:     "test-model",
	}))

	got, err := er.GetByMessageID(ctx, msgID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hamlet", *got.EventName)
}

func TestEventUpsertOverwritesExistingRow(t *testing.T) {
	ctx := context.Background()
	er := GetEventRepository()
	msgID := insertTestMessage(t, "event-overwrite-1")

	name1 := "First Name"
	date := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, er.Upsert(ctx, &schema.EventRecord{MessageID: msgID, Status: schema.EventStatusSucceeded, EventName: &name1, EventDate: &date}))

	name2 := "Renamed"
	require.NoError(t, er.Upsert(ctx, &schema.EventRecord{MessageID: msgID, Status: schema.EventStatusSucceeded, EventName: &name2, EventDate: &date}))

	got, err := er.GetByMessageID(ctx, msgID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Renamed", *got.EventName)
}

func TestEventGetByMessageIDMissingReturnsNil(t *testing.T) {
	ctx := context.Background()
	er := GetEventRepository()
	got, err := er.GetByMessageID(ctx, 987654321)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestListUpcomingOnlyReturnsSucceededFutureEvents(t *testing.T) {
	ctx := context.Background()
	er := GetEventRepository()

	pastMsg := insertTestMessage(t, "event-past-1")
	past := time.Now().AddDate(0, -1, 0)
	pastName := "Past Event"
	require.NoError(t, er.Upsert(ctx, &schema.EventRecord{MessageID: pastMsg, Status: schema.EventStatusSucceeded, EventName: &pastName, EventDate: &past}))

	futureMsg := insertTestMessage(t, "event-future-1")
	future := time.Now().AddDate(0, 1, 0)
	futureName := "Future Event"
	require.NoError(t, er.Upsert(ctx, &schema.EventRecord{MessageID: futureMsg, Status: schema.EventStatusSucceeded, EventName: &futureName, EventDate: &future}))

	out, err := er.ListUpcoming(ctx, time.Now(), 50)
	require.NoError(t, err)

	var sawFuture, sawPast bool
	for _, e := range out {
		if e.MessageID == futureMsg {
			sawFuture = true
		}
		if e.MessageID == pastMsg {
			sawPast = true
		}
	}
	assert.True(t, sawFuture)
	assert.False(t, sawPast)
}
