// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

func financialSlug() string { return "financial" }

func sampleTaxonomy() ([]*schema.TaxonomyLabel, map[string][]*schema.TaxonomyLabel) {
	parent := financialSlug()
	tier1 := []*schema.TaxonomyLabel{
		{Level: 1, Slug: "financial", Name: "Financial"},
		{Level: 1, Slug: "personal-social", Name: "Personal & Social"},
	}
	tier2ByParent := map[string][]*schema.TaxonomyLabel{
		"financial": {
			{Level: 2, Slug: "invoices", Name: "Invoices", ParentSlug: &parent},
			{Level: 2, Slug: "receipts", Name: "Receipts", ParentSlug: &parent},
		},
	}
	return tier1, tier2ByParent
}

func TestTruncateBodyLeavesShortBodiesUnchanged(t *testing.T) {
	assert.Equal(t, "hello", TruncateBody("hello"))
}

func TestTruncateBodyCapsAt20000Chars(t *testing.T) {
	body := strings.Repeat("a", 25000)
	out := TruncateBody(body)
	assert.Len(t, out, maxBodyChars)
}

func TestParseLabelingResponseAcceptsCleanTwoLines(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	result := ParseLabelingResponse("Financial\nInvoices", tier1, tier2)
	assert.False(t, result.Rejected)
	assert.Equal(t, "Financial", result.Tier1)
	assert.NotNil(t, result.Tier2)
	assert.Equal(t, "Invoices", *result.Tier2)
}

func TestParseLabelingResponseAcceptsNoneTier2(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	result := ParseLabelingResponse("Financial\nNone", tier1, tier2)
	assert.False(t, result.Rejected)
	assert.Equal(t, "Financial", result.Tier1)
	assert.Nil(t, result.Tier2)
}

func TestParseLabelingResponseStripsLabelPrefixesAndBullets(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	result := ParseLabelingResponse("- Category: Financial\n* Subcategory: Receipts", tier1, tier2)
	assert.False(t, result.Rejected)
	assert.Equal(t, "Financial", result.Tier1)
	assert.Equal(t, "Receipts", *result.Tier2)
}

func TestParseLabelingResponseMapsBareTier2BackToParent(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	result := ParseLabelingResponse("Invoices", tier1, tier2)
	assert.False(t, result.Rejected)
	assert.Equal(t, "Financial", result.Tier1)
	assert.Equal(t, "Invoices", *result.Tier2)
}

func TestParseLabelingResponseRejectsUnknownTier1(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	result := ParseLabelingResponse("Not A Real Category", tier1, tier2)
	assert.True(t, result.Rejected)
}

func TestParseLabelingResponseRejectsOverlongSubcategory(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	result := ParseLabelingResponse("Financial\n"+strings.Repeat("x", 81), tier1, tier2)
	assert.False(t, result.Rejected)
	assert.Equal(t, "Financial", result.Tier1)
	assert.Nil(t, result.Tier2)
}

func TestParseLabelingResponseRejectsMetaCommentarySubcategory(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	result := ParseLabelingResponse("Financial\nNote: not sure", tier1, tier2)
	assert.False(t, result.Rejected)
	assert.Nil(t, result.Tier2)
}

func TestRenderLabelingPromptIncludesCategoriesAndStrictNote(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	in := BuildPromptInputFromTaxonomy(append(tier1, tier2["financial"]...), []string{"Re: Invoice #1", "Invoice #1"}, nil, "weekly", "some")
	prompt := RenderLabelingPrompt(in, true)
	assert.Contains(t, prompt, "Financial")
	assert.Contains(t, prompt, "Invoices")
	assert.Contains(t, prompt, "weekly")
	assert.Contains(t, prompt, "did not follow this format")
}

func TestBuildPromptInputDedupesNormalizedSubjects(t *testing.T) {
	tier1, tier2 := sampleTaxonomy()
	in := BuildPromptInputFromTaxonomy(append(tier1, tier2["financial"]...),
		[]string{"Invoice #1", "Re: Invoice #1", "Fwd: Invoice #1"}, nil, "weekly", "some")
	assert.Len(t, in.Subjects, 1)
}
