// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/inboxforge/mailpipe/internal/embedtext"
	"github.com/inboxforge/mailpipe/internal/llmclient"
	"github.com/inboxforge/mailpipe/internal/provider"
	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/internal/vectorindex"
	"github.com/inboxforge/mailpipe/pkg/log"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

const maxCandidates = 500
const defaultNeighborK = 20

// Engine runs one cluster/label engine (C6) iteration at a time.
type Engine struct {
	Messages   *repository.MessageRepository
	Taxonomy   *repository.TaxonomyRepository
	Clusters   *repository.ClusterRepository
	Assigns    *repository.AssignmentRepository
	Vector     *vectorindex.Index
	LLM        *llmclient.Client
	Provider   provider.Provider

	EmbeddingModel      string
	GenerationModel     string
	LabelerVersion      string
	SimilarityThreshold float64
	EmbeddingProvenance string
}

// IterationResult summarizes one seed's processing for job-progress
// reporting.
type IterationResult struct {
	SeedMessageID int64
	ClusterID     string
	MessageCount  int
	Category      string
	Subcategory   string
}

// RunOnce performs one full iteration of spec §4.2's numbered steps,
// or returns (nil, nil) if there is no unlabelled, non-trash message
// left to seed from.
func (e *Engine) RunOnce(ctx context.Context) (*IterationResult, error) {
	seed, err := e.Messages.FindOldestUnlabelledNonTrash(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: seed selection: %w", err)
	}
	if seed == nil {
		return nil, nil
	}

	candidates, err := e.assembleCandidates(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("cluster: candidate assembly: %w", err)
	}

	clusterID := ClusterID(seed.ID, e.SimilarityThreshold, e.LabelerVersion)

	samples, err := e.sampleBodies(ctx, clusterID, candidates)
	if err != nil {
		log.Warnf("cluster: body sampling for cluster %s: %v", clusterID, err)
	}

	freq := FrequencyLabel(timestampsOf(candidates))
	unread := UnreadLabel(unreadFlagsOf(candidates))

	all, err := e.Taxonomy.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("cluster: load taxonomy: %w", err)
	}

	var subjects []string
	for _, m := range candidates {
		subjects = append(subjects, m.Subject)
	}

	input := BuildPromptInputFromTaxonomy(all, subjects, samples, freq, unread)

	result, err := e.labelWithRetry(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("cluster: model call failed for cluster %s: %w", clusterID, err)
	}

	if err := e.extendTaxonomyIfNeeded(ctx, result); err != nil {
		return nil, fmt.Errorf("cluster: taxonomy extension: %w", err)
	}

	if err := e.writeCluster(ctx, seed, clusterID, candidates, freq, unread, result); err != nil {
		return nil, fmt.Errorf("cluster: write path: %w", err)
	}

	subcat := ""
	if result.Tier2 != nil {
		subcat = *result.Tier2
	}
	return &IterationResult{
		SeedMessageID: seed.ID,
		ClusterID:     clusterID,
		MessageCount:  len(candidates),
		Category:      result.Tier1,
		Subcategory:   subcat,
	}, nil
}

func (e *Engine) assembleCandidates(ctx context.Context, seed *schema.Message) ([]*schema.Message, error) {
	sameDomain, err := e.Messages.FindUnlabelledBySenderDomain(ctx, seed.FromDomain, seed.ID)
	if err != nil {
		return nil, err
	}

	seedTokens := SubjectTokens(NormalizeSubject(seed.Subject))
	var byJaccard []*schema.Message
	for _, m := range sameDomain {
		sim := JaccardSimilarity(seedTokens, SubjectTokens(NormalizeSubject(m.Subject)))
		if sim >= jaccardThreshold {
			byJaccard = append(byJaccard, m)
		}
	}

	candidates := append([]*schema.Message{seed}, byJaccard...)

	if len(byJaccard) == 0 && e.Vector != nil {
		embedding, err := e.LLM.Embed(ctx, e.EmbeddingModel, embedtext.For(seed))
		if err == nil {
			neighbors, nerr := e.Vector.SearchDomainProvenance(ctx, embedding, seed.FromDomain, e.EmbeddingProvenance, defaultNeighborK)
			if nerr == nil {
				for _, n := range neighbors {
					if float64(n.Score) < e.SimilarityThreshold || n.MessageID == seed.ID {
						continue
					}
					m, gerr := e.Messages.GetByID(ctx, n.MessageID)
					if gerr == nil && m != nil && m.Category == nil {
						candidates = append(candidates, m)
					}
				}
			}
		}
	}

	dedup := map[int64]*schema.Message{}
	for _, m := range candidates {
		dedup[m.ID] = m
	}
	out := make([]*schema.Message, 0, len(dedup))
	for _, m := range dedup {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID < out[j].ID
		}
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	if len(out) > maxCandidates {
		out = out[:maxCandidates]
	}
	return out, nil
}

func (e *Engine) sampleBodies(ctx context.Context, clusterID string, candidates []*schema.Message) ([]string, error) {
	n := SampleCount(len(candidates))
	rng := SampleRNG(clusterID)
	idxs := ChooseSample(rng, len(candidates), n)

	var samples []string
	var firstErr error
	for _, i := range idxs {
		body, err := e.Provider.GetMessageFull(ctx, candidates[i].ProviderID)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		samples = append(samples, TruncateBody(body.PlainText))
	}
	return samples, firstErr
}

// labelWithRetry calls the model, validates the response, and retries
// once with a stricter prompt if no Tier-1 category can be recognized
// in it (spec §4.2 step 7). A subcategory that ParseLabelingResponse
// rejects is dropped without a retry.
func (e *Engine) labelWithRetry(ctx context.Context, input PromptInput) (ParseResult, error) {
	prompt := RenderLabelingPrompt(input, false)
	raw, err := e.LLM.Generate(ctx, e.GenerationModel, prompt)
	if err != nil {
		return ParseResult{}, err
	}

	result := ParseLabelingResponse(raw, input.Tier1, input.Tier2ByParent)
	if !result.Rejected {
		return result, nil
	}

	strictPrompt := RenderLabelingPrompt(input, true)
	raw, err = e.LLM.Generate(ctx, e.GenerationModel, strictPrompt)
	if err != nil {
		return ParseResult{}, err
	}
	result = ParseLabelingResponse(raw, input.Tier1, input.Tier2ByParent)
	if result.Rejected {
		return ParseResult{}, fmt.Errorf("model response rejected twice: %s", result.RejectReason)
	}
	return result, nil
}

func (e *Engine) extendTaxonomyIfNeeded(ctx context.Context, result ParseResult) error {
	if result.Tier2 == nil {
		return nil
	}
	parentSlug := Tier1Slug(result.Tier1)
	existing, err := e.Taxonomy.ListByParent(ctx, parentSlug)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.Name == *result.Tier2 {
			return nil
		}
	}
	_, err = e.Taxonomy.ExtendTier2(ctx, parentSlug, *result.Tier2, "")
	return err
}

func (e *Engine) writeCluster(ctx context.Context, seed *schema.Message, clusterID string, candidates []*schema.Message, freq, unread string, result ParseResult) error {
	var subcatPtr *string
	if result.Tier2 != nil {
		subcatPtr = result.Tier2
	}

	parentSlug := Tier1Slug(result.Tier1)
	labelSlug := parentSlug
	if subcatPtr != nil {
		labelSlug = parentSlug + "--" + repository.Slugify(*subcatPtr)
	}
	label, err := e.Taxonomy.GetBySlug(ctx, labelSlug)
	if err != nil {
		return err
	}
	if label == nil {
		label, err = e.Taxonomy.GetBySlug(ctx, parentSlug)
		if err != nil {
			return err
		}
	}

	cl := &schema.Cluster{
		ID:             clusterID,
		SeedMessageID:  seed.ID,
		Threshold:      e.SimilarityThreshold,
		LabelerVersion: e.LabelerVersion,
		Size:           len(candidates),
		FrequencyLabel: freq,
		UnreadLabel:    unread,
		Category:       result.Tier1,
		Subcategory:    subcatPtr,
	}
	if err := e.Clusters.Insert(ctx, cl); err != nil {
		return err
	}

	ids := make([]int64, len(candidates))
	for i, m := range candidates {
		ids[i] = m.ID
	}
	clusterIDPtr := &clusterID
	if _, err := e.Messages.UpdateClassification(ctx, ids, clusterIDPtr, result.Tier1, subcatPtr, e.LabelerVersion); err != nil {
		return err
	}

	if label != nil {
		for _, id := range ids {
			if err := e.Assigns.Assign(ctx, id, label.ID, "cluster-label"); err != nil {
				return err
			}
		}
	}
	return nil
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
