// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest implements the ingestor (C5): pages message metadata
// from the provider since the checkpoint, persists it in strict order
// to the message store and vector index, and advances the checkpoint
// only after both succeed for a given message.
package ingest

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/inboxforge/mailpipe/internal/embedtext"
	"github.com/inboxforge/mailpipe/internal/cluster"
	"github.com/inboxforge/mailpipe/internal/llmclient"
	"github.com/inboxforge/mailpipe/internal/provider"
	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/internal/vectorindex"
	"github.com/inboxforge/mailpipe/pkg/log"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

// safetyMargin is subtracted from the checkpoint before paging, to
// guard against a boundary miss on messages that share the checkpoint
// second (spec §4.1).
const safetyMargin = time.Second

const pageSize = 100

// Ingestor pages the provider and persists metadata + vectors.
type Ingestor struct {
	Provider   provider.Provider
	Messages   *repository.MessageRepository
	Checkpoint *repository.CheckpointRepository
	Vector     *vectorindex.Index
	LLM        *llmclient.Client

	EmbeddingModel      string
	EmbeddingDimension  int
	EmbeddingProvenance string
}

// Result is the outcome of one Ingest run (spec §4.1 contract).
type Result struct {
	Processed int
	Skipped   int
	Failed    int
	NewCheckpoint time.Time
}

// Ingest runs to exhaustion of the provider's page cursor, paging
// ids since checkpoint-1s.
func (in *Ingestor) Ingest(ctx context.Context, onProgress func(Result)) (Result, error) {
	checkpoint, err := in.Checkpoint.GetLastIngestedTimestamp(ctx)
	if err != nil {
		return Result{}, err
	}

	since := checkpoint
	if !since.IsZero() {
		since = since.Add(-safetyMargin)
	}

	var result Result
	result.NewCheckpoint = checkpoint

	query := provider.AfterQuery(since)
	pageToken := ""
	for {
		page, err := in.Provider.ListMessages(ctx, query, pageToken, pageSize)
		if err != nil {
			return result, err
		}

		for _, meta := range page.Items {
			ts := coerceUTC(meta.Timestamp)
			if !checkpoint.IsZero() && !ts.After(checkpoint) {
				result.Skipped++
				continue
			}

			if err := in.persistOne(ctx, meta, ts); err != nil {
				var dimErr *llmclient.DimensionMismatchError
				if errors.As(err, &dimErr) {
					return result, err
				}
				log.Warnf("ingest: persist %s: %v", meta.ProviderID, err)
				result.Failed++
				continue
			}

			result.Processed++
			if ts.After(result.NewCheckpoint) {
				result.NewCheckpoint = ts
				if err := in.Checkpoint.AdvanceLastIngestedTimestamp(ctx, ts); err != nil {
					log.Warnf("ingest: advance checkpoint: %v", err)
				}
			}
			if onProgress != nil && result.Processed%50 == 0 {
				onProgress(result)
			}
		}

		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	if onProgress != nil {
		onProgress(result)
	}
	return result, nil
}

// persistOne performs spec §4.1 step 3's strict order: (a) upsert
// Message, (b) build embedding text, (c) compute vector, (d) upsert
// vector. The checkpoint is only advanced by the caller after this
// returns successfully.
func (in *Ingestor) persistOne(ctx context.Context, meta provider.MessageMetadata, ts time.Time) error {
	msg := &schema.Message{
		ProviderID:        meta.ProviderID,
		ThreadID:          meta.ThreadID,
		Timestamp:         ts,
		IsUnread:          meta.IsUnread,
		ProviderLabels:    meta.Labels,
		FromAddress:       meta.FromAddress,
		FromDomain:        domainOf(meta.FromAddress),
		ToAddresses:       meta.ToAddresses,
		CcAddresses:       meta.CcAddresses,
		Subject:           meta.Subject,
		SubjectNormalized: cluster.NormalizeSubject(meta.Subject),
	}

	id, err := in.Messages.UpsertMetadata(ctx, msg)
	if err != nil {
		return err
	}
	msg.ID = id

	text := embedtext.For(msg)

	embedding, err := in.LLM.Embed(ctx, in.EmbeddingModel, text)
	if err != nil {
		return err
	}
	if err := llmclient.CheckDimension(embedding, in.EmbeddingDimension); err != nil {
		return err
	}

	point := vectorindex.Point{
		ID:         cluster.VectorPointID(id),
		MessageID:  id,
		Embedding:  embedding,
		FromDomain: msg.FromDomain,
		Provenance: in.EmbeddingProvenance,
	}
	return in.Vector.Upsert(ctx, []vectorindex.Point{point})
}

func coerceUTC(t time.Time) time.Time {
	if t.Location() == nil {
		return t.UTC()
	}
	return t.UTC()
}

func domainOf(address string) string {
	addr, err := mail.ParseAddress(address)
	if err != nil {
		at := strings.LastIndex(address, "@")
		if at < 0 {
			return ""
		}
		return strings.ToLower(address[at+1:])
	}
	at := strings.LastIndex(addr.Address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}
