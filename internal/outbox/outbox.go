// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package outbox drains the label-push and archive-push outbox tables
// (C9) against the mail provider, adapted from the teacher's
// archiveWorker.go: each outbox is drained one row at a time by its own
// polling goroutine (see RunLoop), paced against provider rate limits.
package outbox

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/inboxforge/mailpipe/internal/provider"
	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/pkg/log"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

// interRowLimit paces provider calls at 20/s (50ms/row), matching the
// teacher's archiving worker's single-job-at-a-time cadence.
const interRowLimit = 50 * time.Millisecond

// progressEvery reports progress every N processed rows.
const progressEvery = 50

// reservedArchiveNames are provider labels the archive-push worker must
// not reuse as its own archive marker, to avoid colliding with
// provider-builtin folders.
var reservedArchiveNames = map[string]bool{"Archive": true, "Archived": true}

// Summary reports one drain pass's outcome.
type Summary struct {
	Processed int
	Failed    int
}

// Worker drains both outbox tables against the provider.
type Worker struct {
	Messages   *repository.MessageRepository
	Assigns    *repository.AssignmentRepository
	Retention  *repository.RetentionRepository
	Taxonomy   *repository.TaxonomyRepository
	Checkpoint *repository.CheckpointRepository
	Provider   provider.Provider

	ArchiveLabelName string // e.g. "mailpipe/archived", falls back if reserved
}

func (w *Worker) archiveLabelName() string {
	name := w.ArchiveLabelName
	if name == "" {
		name = "mailpipe-archived"
	}
	if reservedArchiveNames[name] {
		name = name + "-mailpipe"
	}
	return name
}

// DrainLabelPush processes every unprocessed label_push_outbox row,
// applying the message's current assignment as a provider label.
func (w *Worker) DrainLabelPush(ctx context.Context, onProgress func(Summary)) (Summary, error) {
	limiter := rate.NewLimiter(rate.Every(interRowLimit), 1)
	var sum Summary

	for {
		row, err := w.Assigns.NextUnprocessedLabelPush(ctx)
		if err != nil {
			return sum, err
		}
		if row == nil {
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			return sum, err
		}

		if err := w.pushOneLabel(ctx, row); err != nil {
			log.Warnf("outbox: label push for message %d failed: %v", row.MessageID, err)
			sum.Failed++
			if merr := w.Assigns.MarkLabelPushFailed(ctx, row.ID, err.Error()); merr != nil {
				log.Warnf("outbox: mark label push failed: %v", merr)
			}
			continue
		}

		sum.Processed++
		if err := w.Assigns.MarkLabelPushProcessed(ctx, row.ID); err != nil {
			log.Warnf("outbox: mark label push processed: %v", err)
		}
		if onProgress != nil && sum.Processed%progressEvery == 0 {
			onProgress(sum)
		}
	}
	if onProgress != nil {
		onProgress(sum)
	}
	return sum, nil
}

func (w *Worker) pushOneLabel(ctx context.Context, row *schema.LabelPushOutboxRow) error {
	msg, err := w.Messages.GetByID(ctx, row.MessageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.Category == nil {
		return nil
	}

	assignment, err := w.Assigns.GetByMessageID(ctx, row.MessageID)
	if err != nil {
		return err
	}
	if assignment == nil {
		return nil
	}

	label, err := w.Taxonomy.GetByID(ctx, assignment.LabelID)
	if err != nil {
		return err
	}
	if label == nil {
		return nil
	}

	providerLabelID, err := w.ensureProviderLabel(ctx, label)
	if err != nil {
		return err
	}

	return w.retryOnce(ctx, func() error {
		return w.Provider.ModifyLabels(ctx, msg.ProviderID, []string{providerLabelID}, nil)
	})
}

// ensureProviderLabel returns the provider-side label id for a taxonomy
// label, creating it remotely on first use and recording the mapping
// (spec §4.4: outgoing label sync stays limited to what the provider
// needs to reflect, not a bidirectional mirror).
func (w *Worker) ensureProviderLabel(ctx context.Context, label *schema.TaxonomyLabel) (string, error) {
	if label.ProviderLabelID != nil && *label.ProviderLabelID != "" {
		return *label.ProviderLabelID, nil
	}

	created, err := w.Provider.CreateLabel(ctx, label.Slug)
	if err != nil {
		return "", err
	}
	if err := w.Taxonomy.SetProviderSync(ctx, label.ID, &created.ID, "synced"); err != nil {
		log.Warnf("outbox: record provider label sync for %s: %v", label.Slug, err)
	}
	return created.ID, nil
}

// DrainArchivePush processes every unprocessed archive_push_outbox row,
// applying the archive-marker provider label and recording ArchivedAt.
func (w *Worker) DrainArchivePush(ctx context.Context, onProgress func(Summary)) (Summary, error) {
	limiter := rate.NewLimiter(rate.Every(interRowLimit), 1)
	var sum Summary

	for {
		row, err := w.Retention.NextUnprocessed(ctx)
		if err != nil {
			return sum, err
		}
		if row == nil {
			break
		}

		if err := limiter.Wait(ctx); err != nil {
			return sum, err
		}

		now := time.Now().UTC()
		if err := w.pushOneArchive(ctx, row, now); err != nil {
			log.Warnf("outbox: archive push for message %d failed: %v", row.MessageID, err)
			sum.Failed++
			if merr := w.Retention.MarkFailed(ctx, row.ID, err.Error()); merr != nil {
				log.Warnf("outbox: mark archive push failed: %v", merr)
			}
			continue
		}

		sum.Processed++
		if err := w.Retention.MarkProcessed(ctx, row.ID); err != nil {
			log.Warnf("outbox: mark archive push processed: %v", err)
		}
		if onProgress != nil && sum.Processed%progressEvery == 0 {
			onProgress(sum)
		}
	}
	if onProgress != nil {
		onProgress(sum)
	}
	return sum, nil
}

func (w *Worker) pushOneArchive(ctx context.Context, row *schema.ArchivePushOutboxRow, now time.Time) error {
	msg, err := w.Messages.GetByID(ctx, row.MessageID)
	if err != nil {
		return err
	}
	if msg == nil || msg.ArchivedAt != nil {
		return nil
	}

	providerLabelID, err := w.ensureArchiveProviderLabel(ctx)
	if err != nil {
		return err
	}

	if err := w.retryOnce(ctx, func() error {
		return w.Provider.ModifyLabels(ctx, msg.ProviderID, []string{providerLabelID}, nil)
	}); err != nil {
		return err
	}

	return w.Messages.MarkArchived(ctx, msg.ID, now)
}

// ensureArchiveProviderLabel returns the provider-side id for the
// archive-marker label, creating it remotely on first use and caching
// the mapping in the checkpoint store (spec §4.4/§8: the archive
// worker marks a message handled by adding the marker label, e.g.
// "Email Archive", exactly once per message).
func (w *Worker) ensureArchiveProviderLabel(ctx context.Context) (string, error) {
	if w.Checkpoint != nil {
		if id, ok, err := w.Checkpoint.Get(ctx, schema.CheckpointKeyArchiveMarkerProviderID); err == nil && ok && id != "" {
			return id, nil
		}
	}

	created, err := w.Provider.CreateLabel(ctx, w.archiveLabelName())
	if err != nil {
		return "", err
	}
	if w.Checkpoint != nil {
		if err := w.Checkpoint.Set(ctx, schema.CheckpointKeyArchiveMarkerProviderID, created.ID); err != nil {
			log.Warnf("outbox: record archive marker label id: %v", err)
		}
	}
	return created.ID, nil
}

// retryOnce retries a provider call exactly once after a brief pause,
// matching spec §6's "tolerate one transient provider failure" guidance.
func (w *Worker) retryOnce(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(200 * time.Millisecond):
	}
	return fn()
}

// RunLoop runs both drains repeatedly with a sync.WaitGroup the way the
// teacher's archiving worker is driven from a channel receive loop,
// adapted here to periodic polling since mailpipe has no live job queue
// feeding the outbox synchronously.
func (w *Worker) RunLoop(ctx context.Context, interval time.Duration) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		w.pollLoop(ctx, interval, func(ctx context.Context) {
			if _, err := w.DrainLabelPush(ctx, nil); err != nil {
				log.Errorf("outbox: label push drain: %v", err)
			}
		})
	}()

	go func() {
		defer wg.Done()
		w.pollLoop(ctx, interval, func(ctx context.Context) {
			if _, err := w.DrainArchivePush(ctx, nil); err != nil {
				log.Errorf("outbox: archive push drain: %v", err)
			}
		})
	}()

	wg.Wait()
}

func (w *Worker) pollLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		fn(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
