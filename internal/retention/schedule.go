// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package retention periodically computes each unarchived message's
// effective retention window and enqueues it for archive-push once it
// has expired (C10), scheduled with gocron the way the teacher's
// taskManager registers its daily retention sweep.
package retention

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/pkg/log"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

// sweepPageSize bounds how many overdue messages one sweep inspects,
// so a large backlog doesn't hold the scheduler tick for too long.
const sweepPageSize = 500

// Sweeper computes effective retention per message and plans archive
// pushes for anything past its window.
type Sweeper struct {
	Messages   *repository.MessageRepository
	Taxonomy   *repository.TaxonomyRepository
	Retention  *repository.RetentionRepository
	Checkpoint *repository.CheckpointRepository
}

// SweepResult summarizes one sweep pass.
type SweepResult struct {
	Inspected int
	Planned   int
}

// Sweep scans up to sweepPageSize unarchived messages older than one
// day, oldest first, and plans an archive push for each one whose
// effective retention has actually elapsed.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	defaultDays, err := s.Checkpoint.GetRetentionDefaultDays(ctx)
	if err != nil {
		defaultDays = schema.DefaultRetentionDays
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -1)
	msgs, err := s.Messages.FindOlderThanUnarchived(ctx, cutoff, sweepPageSize)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, m := range msgs {
		result.Inspected++

		var label *schema.TaxonomyLabel
		if m.Category != nil {
			slug := s.labelSlug(m)
			if slug != "" {
				label, err = s.Taxonomy.GetBySlug(ctx, slug)
				if err != nil {
					log.Warnf("retention: load label for message %d: %v", m.ID, err)
				}
			}
		}

		days, err := s.Retention.EffectiveRetentionDays(ctx, label, defaultDays)
		if err != nil {
			log.Warnf("retention: effective retention for message %d: %v", m.ID, err)
			continue
		}

		expiry := m.Timestamp.AddDate(0, 0, days)
		if time.Now().UTC().Before(expiry) {
			continue
		}

		if err := s.Retention.Plan(ctx, m.ID, "retention-expired"); err != nil {
			log.Warnf("retention: plan archive for message %d: %v", m.ID, err)
			continue
		}
		result.Planned++
	}
	return result, nil
}

func (s *Sweeper) labelSlug(m *schema.Message) string {
	if m.Category == nil {
		return ""
	}
	parent := repository.Slugify(*m.Category)
	if m.Subcategory != nil && *m.Subcategory != "" {
		return parent + "--" + repository.Slugify(*m.Subcategory)
	}
	return parent
}

// RegisterDailySweep registers the sweep as a daily gocron job at 04:00
// in the scheduler's location (time.Local unless the scheduler was
// created with gocron.WithLocation), matching the teacher's retention
// service's fixed-hour cadence.
func RegisterDailySweep(s gocron.Scheduler, sweeper *Sweeper) error {
	_, err := s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(4, 0, 0))),
		gocron.NewTask(func() {
			result, err := sweeper.Sweep(context.Background())
			if err != nil {
				log.Errorf("retention: sweep failed: %v", err)
				return
			}
			log.Infof("retention: sweep inspected %d, planned %d archive pushes", result.Inspected, result.Planned)
		}),
	)
	return err
}
