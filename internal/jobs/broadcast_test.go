// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

func newTestBroadcaster(t *testing.T) *Broadcaster {
	t.Helper()
	b, err := NewEmbeddedBroadcaster(0)
	require.NoError(t, err)
	t.Cleanup(b.Shutdown)
	return b
}

func TestSubscribeReceivesPublishedStatus(t *testing.T) {
	b := newTestBroadcaster(t)
	sub, err := b.Subscribe("job-1")
	require.NoError(t, err)
	defer sub.Close()

	b.publish("job-1", schema.JobStatus{JobID: "job-1", State: schema.JobStateRunning})

	select {
	case got := <-sub.C():
		assert.Equal(t, "job-1", got.JobID)
		assert.Equal(t, schema.JobStateRunning, got.State)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published status")
	}
}

func TestSubscriptionIsScopedToItsJobID(t *testing.T) {
	b := newTestBroadcaster(t)
	sub, err := b.Subscribe("job-a")
	require.NoError(t, err)
	defer sub.Close()

	b.publish("job-b", schema.JobStatus{JobID: "job-b"})

	select {
	case <-sub.C():
		t.Fatal("subscriber for job-a must not receive job-b updates")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestOfferDropsOldestOnOverflow(t *testing.T) {
	s := &Subscription{ch: make(chan schema.JobStatus, 2)}

	s.offer(schema.JobStatus{JobID: "oldest"})
	s.offer(schema.JobStatus{JobID: "middle"})
	s.offer(schema.JobStatus{JobID: "newest"})

	first := <-s.ch
	second := <-s.ch
	assert.Equal(t, "middle", first.JobID)
	assert.Equal(t, "newest", second.JobID)
}

func TestCloseIsIdempotent(t *testing.T) {
	b := newTestBroadcaster(t)
	sub, err := b.Subscribe("job-close")
	require.NoError(t, err)

	sub.Close()
	assert.NotPanics(t, func() { sub.Close() })
}
