// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package jobs

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/inboxforge/mailpipe/pkg/log"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

// Broadcaster fans job status updates out to SSE subscribers over an
// embedded NATS server. The in-process transport gives every job its
// own subject (`mailpipe.jobs.<job_id>`) without the registry having to
// track subscriber sets itself; the bounded, drop-oldest queue
// semantics spec §4.7 requires are enforced at the subscriber boundary
// in Subscribe, not by NATS itself.
type Broadcaster struct {
	srv  *server.Server
	conn *nats.Conn
}

// NewEmbeddedBroadcaster starts an embedded NATS server bound to the
// given port (no persistence, no clustering — purely in-process pub/sub)
// and connects a client to it.
func NewEmbeddedBroadcaster(port int) (*Broadcaster, error) {
	opts := &server.Options{
		Port:      port,
		NoLog:     true,
		NoSigs:    true,
		JetStream: false,
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("jobs: start embedded nats: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(0) {
		srv.Shutdown()
		return nil, fmt.Errorf("jobs: embedded nats did not become ready")
	}

	conn, err := nats.Connect(srv.ClientURL())
	if err != nil {
		srv.Shutdown()
		return nil, fmt.Errorf("jobs: connect to embedded nats: %w", err)
	}

	return &Broadcaster{srv: srv, conn: conn}, nil
}

func subject(jobID string) string {
	return "mailpipe.jobs." + jobID
}

// publish is called by the registry on every status mutation. It must
// never block the calling worker goroutine; nats.Conn.Publish is
// fire-and-forget over an in-process loopback connection, which keeps
// this effectively non-blocking under the loads this spec targets.
func (b *Broadcaster) publish(jobID string, status schema.JobStatus) {
	payload, err := json.Marshal(status)
	if err != nil {
		log.Warnf("jobs: marshal status for %s: %v", jobID, err)
		return
	}
	if err := b.conn.Publish(subject(jobID), payload); err != nil {
		log.Warnf("jobs: publish status for %s: %v", jobID, err)
	}
}

// Subscription is a bounded, SSE-facing view of one job's status
// stream. Overflow drops the oldest pending update and never blocks
// the publisher (spec §5: "overflow on any subscriber drops the oldest
// pending event, never the worker's progress").
type Subscription struct {
	ch       chan schema.JobStatus
	mu       sync.Mutex
	sub      *nats.Subscription
	unsubbed bool
}

// Subscribe opens a bounded (25-deep) subscription to a job's updates.
func (b *Broadcaster) Subscribe(jobID string) (*Subscription, error) {
	s := &Subscription{ch: make(chan schema.JobStatus, subscriberQueueSize)}

	sub, err := b.conn.Subscribe(subject(jobID), func(msg *nats.Msg) {
		var status schema.JobStatus
		if err := json.Unmarshal(msg.Data, &status); err != nil {
			return
		}
		s.offer(status)
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: subscribe to %s: %w", jobID, err)
	}
	s.sub = sub
	return s, nil
}

// offer performs a non-blocking send, dropping the oldest queued item
// and retrying once if the channel is full — matching queue.Queue's
// maxsize+drop-oldest behavior in the source system exactly.
func (s *Subscription) offer(status schema.JobStatus) {
	select {
	case s.ch <- status:
		return
	default:
	}

	select {
	case <-s.ch:
	default:
	}

	select {
	case s.ch <- status:
	default:
	}
}

// C returns the channel of status updates for this subscription.
func (s *Subscription) C() <-chan schema.JobStatus {
	return s.ch
}

// Close unsubscribes and releases the subscription's resources.
func (s *Subscription) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.unsubbed {
		return
	}
	s.unsubbed = true
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
}

// Shutdown tears down the embedded NATS server and client connection.
func (b *Broadcaster) Shutdown() {
	if b.conn != nil {
		b.conn.Close()
	}
	if b.srv != nil {
		b.srv.Shutdown()
	}
}
