// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package labeler implements the per-message labeler (C7): the same
// contract as the cluster engine (C6) applied to a single message,
// chosen automatically when the unlabelled backlog is small.
package labeler

import (
	"context"
	"fmt"
	"time"

	"github.com/inboxforge/mailpipe/internal/cluster"
	"github.com/inboxforge/mailpipe/internal/llmclient"
	"github.com/inboxforge/mailpipe/internal/provider"
	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

const recentActivityLimit = 30

// Labeler labels one message at a time using the sender's recent
// activity to synthesize frequency/unread labels (spec §4.3).
type Labeler struct {
	Messages *repository.MessageRepository
	Taxonomy *repository.TaxonomyRepository
	Assigns  *repository.AssignmentRepository
	LLM      *llmclient.Client
	Provider provider.Provider

	GenerationModel string
	LabelerVersion  string
}

// Result summarizes one message's labeling outcome.
type Result struct {
	MessageID   int64
	Category    string
	Subcategory string
}

// RunOnce labels the given message id, returning nil if it is already
// categorized (write-once invariant, spec §3/§5).
func (l *Labeler) RunOnce(ctx context.Context, messageID int64) (*Result, error) {
	msg, err := l.Messages.GetByID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("labeler: load message %d: %w", messageID, err)
	}
	if msg == nil {
		return nil, fmt.Errorf("labeler: message %d not found", messageID)
	}
	if msg.Category != nil {
		return nil, nil
	}

	recent, err := l.Messages.ListRecentBySender(ctx, msg.FromAddress, recentActivityLimit)
	if err != nil {
		return nil, fmt.Errorf("labeler: load recent activity: %w", err)
	}

	freq := cluster.FrequencyLabel(timestampsOf(recent))
	unread := cluster.UnreadLabel(unreadFlagsOf(recent))

	all, err := l.Taxonomy.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("labeler: load taxonomy: %w", err)
	}

	var body string
	if b, berr := l.Provider.GetMessageFull(ctx, msg.ProviderID); berr == nil {
		body = b.PlainText
	}

	input := cluster.BuildPromptInputFromTaxonomy(all, []string{msg.Subject}, nonEmptyBodies(body), freq, unread)

	result, err := l.labelWithRetry(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("labeler: model call failed for message %d: %w", messageID, err)
	}

	if err := l.extendTaxonomyIfNeeded(ctx, result); err != nil {
		return nil, fmt.Errorf("labeler: taxonomy extension: %w", err)
	}

	var subcatPtr *string
	if result.Tier2 != nil {
		subcatPtr = result.Tier2
	}

	if _, err := l.Messages.UpdateClassification(ctx, []int64{messageID}, nil, result.Tier1, subcatPtr, l.LabelerVersion); err != nil {
		return nil, fmt.Errorf("labeler: write classification: %w", err)
	}

	parentSlug := cluster.Tier1Slug(result.Tier1)
	labelSlug := parentSlug
	if subcatPtr != nil {
		labelSlug = parentSlug + "--" + repository.Slugify(*subcatPtr)
	}
	label, err := l.Taxonomy.GetBySlug(ctx, labelSlug)
	if err != nil {
		return nil, err
	}
	if label == nil {
		label, err = l.Taxonomy.GetBySlug(ctx, parentSlug)
		if err != nil {
			return nil, err
		}
	}
	if label != nil {
		if err := l.Assigns.Assign(ctx, messageID, label.ID, "per-message-label"); err != nil {
			return nil, err
		}
	}

	subcat := ""
	if result.Tier2 != nil {
		subcat = *result.Tier2
	}
	return &Result{MessageID: messageID, Category: result.Tier1, Subcategory: subcat}, nil
}

func (l *Labeler) labelWithRetry(ctx context.Context, input cluster.PromptInput) (cluster.ParseResult, error) {
	prompt := cluster.RenderLabelingPrompt(input, false)
	raw, err := l.LLM.Generate(ctx, l.GenerationModel, prompt)
	if err != nil {
		return cluster.ParseResult{}, err
	}

	result := cluster.ParseLabelingResponse(raw, input.Tier1, input.Tier2ByParent)
	if !result.Rejected {
		return result, nil
	}

	strictPrompt := cluster.RenderLabelingPrompt(input, true)
	raw, err = l.LLM.Generate(ctx, l.GenerationModel, strictPrompt)
	if err != nil {
		return cluster.ParseResult{}, err
	}
	result = cluster.ParseLabelingResponse(raw, input.Tier1, input.Tier2ByParent)
	if result.Rejected {
		return cluster.ParseResult{}, fmt.Errorf("model response rejected twice: %s", result.RejectReason)
	}
	return result, nil
}

func (l *Labeler) extendTaxonomyIfNeeded(ctx context.Context, result cluster.ParseResult) error {
	if result.Tier2 == nil {
		return nil
	}
	parentSlug := cluster.Tier1Slug(result.Tier1)
	existing, err := l.Taxonomy.ListByParent(ctx, parentSlug)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.Name == *result.Tier2 {
			return nil
		}
	}
	_, err = l.Taxonomy.ExtendTier2(ctx, parentSlug, *result.Tier2, "")
	return err
}

func nonEmptyBodies(body string) []string {
	if body == "" {
		return nil
	}
	return []string{cluster.TruncateBody(body)}
}

func timestampsOf(msgs []*schema.Message) []time.Time {
	out := make([]time.Time, len(msgs))
	for i, m := range msgs {
		out[i] = m.Timestamp
	}
	return out
}

func unreadFlagsOf(msgs []*schema.Message) []bool {
	out := make([]bool, len(msgs))
	for i, m := range msgs {
		out[i] = m.IsUnread
	}
	return out
}
