// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command mailctl drives mailpipe's ingestion, labeling, outbox, and
// retention subcommands against one configured mail account.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"

	"github.com/inboxforge/mailpipe/internal/calendar"
	"github.com/inboxforge/mailpipe/internal/cluster"
	"github.com/inboxforge/mailpipe/internal/config"
	"github.com/inboxforge/mailpipe/internal/extract"
	"github.com/inboxforge/mailpipe/internal/httpapi"
	"github.com/inboxforge/mailpipe/internal/ingest"
	"github.com/inboxforge/mailpipe/internal/jobs"
	"github.com/inboxforge/mailpipe/internal/labeler"
	"github.com/inboxforge/mailpipe/internal/llmclient"
	"github.com/inboxforge/mailpipe/internal/outbox"
	"github.com/inboxforge/mailpipe/internal/provider"
	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/internal/retention"
	"github.com/inboxforge/mailpipe/internal/vectorindex"
	"github.com/inboxforge/mailpipe/pkg/log"
)

// deps bundles the process-wide singletons each subcommand needs.
type deps struct {
	messages   *repository.MessageRepository
	taxonomy   *repository.TaxonomyRepository
	clusters   *repository.ClusterRepository
	assigns    *repository.AssignmentRepository
	retention  *repository.RetentionRepository
	checkpoint *repository.CheckpointRepository
	events     *repository.EventRepository
	payments   *repository.PaymentRepository

	vector   *vectorindex.Index
	llm      *llmclient.Client
	provider provider.Provider
}

func main() {
	_ = godotenv.Load()
	config.Init()
	log.SetLogDate(config.Keys.LogWithDate)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := repository.Connect(config.Keys.DBDriver, config.Keys.DBDSN); err != nil {
		log.Abortf("mailctl: connect database: %v", err)
	}
	if err := repository.Migrate(config.Keys.DBDriver, repository.GetConnection().DB.DB); err != nil {
		log.Abortf("mailctl: run migrations: %v", err)
	}

	ctx := context.Background()
	if err := repository.GetTaxonomyRepository().SeedDefaults(ctx); err != nil {
		log.Abortf("mailctl: seed taxonomy: %v", err)
	}

	d := buildDeps()

	var err error
	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, d)
	case "label":
		err = runLabel(ctx, d)
	case "outbox":
		err = runOutbox(ctx, d)
	case "retention-sweep":
		err = runRetentionSweep(ctx, d)
	case "extract":
		err = runExtract(ctx, d)
	case "serve":
		err = runServe(ctx, d)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Errorf("mailctl: %s failed: %v", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: mailctl <ingest|label|outbox|retention-sweep|extract|serve>")
}

func buildDeps() *deps {
	vector, err := vectorindex.New(fmt.Sprintf("%s:%d", config.Keys.VectorHost, config.Keys.VectorPort), config.Keys.VectorCollection)
	if err != nil {
		log.Abortf("mailctl: connect vector index: %v", err)
	}

	return &deps{
		messages:   repository.GetMessageRepository(),
		taxonomy:   repository.GetTaxonomyRepository(),
		clusters:   repository.GetClusterRepository(),
		assigns:    repository.GetAssignmentRepository(),
		retention:  repository.GetRetentionRepository(),
		checkpoint: repository.GetCheckpointRepository(),
		events:     repository.GetEventRepository(),
		payments:   repository.GetPaymentRepository(),
		vector:     vector,
		llm:        llmclient.New(config.Keys.ModelHost, config.Keys.ModelTimeout),
		provider:   provider.NewFake(), // real OAuth provider wiring is environment-specific, see spec §1 Non-goals
	}
}

func runIngest(ctx context.Context, d *deps) error {
	in := &ingest.Ingestor{
		Provider:            d.provider,
		Messages:            d.messages,
		Checkpoint:          d.checkpoint,
		Vector:              d.vector,
		LLM:                 d.llm,
		EmbeddingModel:      config.Keys.EmbeddingModel,
		EmbeddingDimension:  768,
		EmbeddingProvenance: config.Keys.EmbeddingVersion,
	}

	result, err := in.Ingest(ctx, func(r ingest.Result) {
		log.Infof("ingest: processed=%d skipped=%d failed=%d", r.Processed, r.Skipped, r.Failed)
	})
	if err != nil {
		return err
	}
	log.Infof("ingest: done processed=%d skipped=%d failed=%d checkpoint=%s",
		result.Processed, result.Skipped, result.Failed, result.NewCheckpoint.Format(time.RFC3339))
	return nil
}

func runLabel(ctx context.Context, d *deps) error {
	unlabelled, err := d.messages.CountUnlabelled(ctx)
	if err != nil {
		return err
	}

	if unlabelled < config.Keys.PerMessageThreshold {
		l := &labeler.Labeler{
			Messages:        d.messages,
			Taxonomy:        d.taxonomy,
			Assigns:         d.assigns,
			LLM:             d.llm,
			Provider:        d.provider,
			GenerationModel: config.Keys.ModelName,
			LabelerVersion:  config.Keys.LabelerVersion,
		}
		for n := 0; n < config.Keys.LabelRunCap; n++ {
			msg, err := d.messages.FindOldestUnlabelledNonTrash(ctx)
			if err != nil {
				return err
			}
			if msg == nil {
				break
			}
			if _, err := l.RunOnce(ctx, msg.ID); err != nil {
				return err
			}
		}
		return nil
	}

	e := &cluster.Engine{
		Messages:            d.messages,
		Taxonomy:            d.taxonomy,
		Clusters:            d.clusters,
		Assigns:             d.assigns,
		Vector:              d.vector,
		LLM:                 d.llm,
		Provider:            d.provider,
		EmbeddingModel:      config.Keys.EmbeddingModel,
		GenerationModel:     config.Keys.ModelName,
		LabelerVersion:       config.Keys.LabelerVersion,
		SimilarityThreshold:  config.Keys.SimilarityThreshold,
		EmbeddingProvenance:  config.Keys.EmbeddingVersion,
	}
	for n := 0; n < config.Keys.LabelRunCap; n++ {
		result, err := e.RunOnce(ctx)
		if err != nil {
			return err
		}
		if result == nil {
			break
		}
		log.Infof("label: cluster %s seed=%d size=%d category=%s", result.ClusterID, result.SeedMessageID, result.MessageCount, result.Category)
	}
	return nil
}

func runOutbox(ctx context.Context, d *deps) error {
	w := &outbox.Worker{
		Messages:         d.messages,
		Assigns:          d.assigns,
		Retention:        d.retention,
		Taxonomy:         d.taxonomy,
		Checkpoint:       d.checkpoint,
		Provider:         d.provider,
		ArchiveLabelName: config.Keys.ArchiveMarkerName,
	}

	labelSummary, err := w.DrainLabelPush(ctx, func(s outbox.Summary) {
		log.Infof("outbox: label push processed=%d failed=%d", s.Processed, s.Failed)
	})
	if err != nil {
		return err
	}

	archiveSummary, err := w.DrainArchivePush(ctx, func(s outbox.Summary) {
		log.Infof("outbox: archive push processed=%d failed=%d", s.Processed, s.Failed)
	})
	if err != nil {
		return err
	}

	log.Infof("outbox: done label(processed=%d failed=%d) archive(processed=%d failed=%d)",
		labelSummary.Processed, labelSummary.Failed, archiveSummary.Processed, archiveSummary.Failed)
	return nil
}

func runRetentionSweep(ctx context.Context, d *deps) error {
	s := &retention.Sweeper{
		Messages:   d.messages,
		Taxonomy:   d.taxonomy,
		Retention:  d.retention,
		Checkpoint: d.checkpoint,
	}
	result, err := s.Sweep(ctx)
	if err != nil {
		return err
	}
	log.Infof("retention-sweep: inspected=%d planned=%d", result.Inspected, result.Planned)
	return nil
}

func runExtract(ctx context.Context, d *deps) error {
	eventExtractor := &extract.EventExtractor{LLM: d.llm, Model: config.Keys.ModelName}
	paymentExtractor := &extract.PaymentExtractor{LLM: d.llm, Model: config.Keys.ModelName}
	publisher := &calendar.Publisher{Events: d.events}

	categories := []string{"Financial", "Commercial & Marketing", "Personal & Social"}
	candidates, err := d.messages.ListByCategories(ctx, categories, time.Now().AddDate(0, -1, 0), 200)
	if err != nil {
		return err
	}

	var extracted, failed int
	for _, msg := range candidates {
		body, err := d.provider.GetMessageFull(ctx, msg.ProviderID)
		if err != nil {
			failed++
			continue
		}

		if ev, err := eventExtractor.Extract(ctx, msg.Subject, msg.FromDomain, msg.Timestamp, body.PlainText); err != nil {
			failed++
		} else if ev != nil {
			ev.MessageID = msg.ID
			if err := d.events.Upsert(ctx, ev); err != nil {
				failed++
			} else {
				extracted++
				if _, err := publisher.Publish(ctx, msg.ID); err != nil {
					log.Warnf("extract: calendar publish for message %d: %v", msg.ID, err)
				}
			}
		}

		if pay, err := paymentExtractor.Extract(ctx, msg.Subject, msg.FromDomain, msg.Timestamp, body.PlainText); err != nil {
			failed++
		} else if pay != nil {
			pay.MessageID = msg.ID
			if err := d.payments.Upsert(ctx, pay); err != nil {
				failed++
			} else {
				extracted++
			}
		}
	}

	log.Infof("extract: extracted=%d failed=%d", extracted, failed)
	return nil
}

func runServe(ctx context.Context, d *deps) error {
	bus, err := jobs.NewEmbeddedBroadcaster(config.Keys.EventBusPort)
	if err != nil {
		return err
	}
	defer bus.Shutdown()

	registry := jobs.NewRegistry(bus)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	sweeper := &retention.Sweeper{
		Messages:   d.messages,
		Taxonomy:   d.taxonomy,
		Retention:  d.retention,
		Checkpoint: d.checkpoint,
	}
	if err := retention.RegisterDailySweep(scheduler, sweeper); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	handler := httpapi.NewRouter(registry)
	log.Infof("mailctl: serving on :8080")
	return http.ListenAndServe(":8080", handler)
}
