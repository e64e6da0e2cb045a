// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"fmt"
	"strings"

	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

const maxBodyChars = 20000

// TruncateBody enforces the 20,000-char body cap before prompting
// (spec §8 boundary behavior).
func TruncateBody(body string) string {
	if len(body) <= maxBodyChars {
		return body
	}
	runes := []rune(body)
	if len(runes) <= maxBodyChars {
		return body
	}
	return string(runes[:maxBodyChars])
}

// PromptInput bundles everything the taxonomy prompt renders (spec
// §4.2 step 6): the current taxonomy, up to five distinct normalized
// subjects, body samples, and the two analysis labels.
type PromptInput struct {
	Tier1          []*schema.TaxonomyLabel
	Tier2ByParent  map[string][]*schema.TaxonomyLabel
	Subjects       []string
	BodySamples    []string
	FrequencyLabel string
	UnreadLabel    string
}

// BuildPromptInputFromTaxonomy assembles the prompt context from an
// already-loaded taxonomy listing (split into Tier-1 labels and Tier-2
// labels grouped by parent slug), the group's subjects, body samples,
// and the two analysis labels.
func BuildPromptInputFromTaxonomy(all []*schema.TaxonomyLabel, subjects, bodySamples []string, freq, unread string) PromptInput {
	in := PromptInput{Tier2ByParent: make(map[string][]*schema.TaxonomyLabel), FrequencyLabel: freq, UnreadLabel: unread}

	seen := map[string]bool{}
	for _, s := range subjects {
		n := NormalizeSubject(s)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		in.Subjects = append(in.Subjects, s)
		if len(in.Subjects) == 5 {
			break
		}
	}
	in.BodySamples = bodySamples

	for _, l := range all {
		if l.Level == 1 {
			in.Tier1 = append(in.Tier1, l)
		} else if l.ParentSlug != nil {
			in.Tier2ByParent[*l.ParentSlug] = append(in.Tier2ByParent[*l.ParentSlug], l)
		}
	}
	return in
}

// RenderLabelingPrompt renders the plain-text labeling prompt (spec §6
// wire contract: ask for exactly two non-empty lines).
func RenderLabelingPrompt(in PromptInput, strict bool) string {
	var b strings.Builder

	b.WriteString("You are classifying an email into a fixed taxonomy.\n\n")
	b.WriteString("Tier-1 categories (choose exactly one):\n")
	for _, l := range in.Tier1 {
		fmt.Fprintf(&b, "- %s\n", l.Name)
		for _, c := range in.Tier2ByParent[l.Slug] {
			fmt.Fprintf(&b, "    - %s: %s\n", c.Name, c.Description)
		}
	}

	b.WriteString("\nSubjects seen in this group:\n")
	for _, s := range in.Subjects {
		fmt.Fprintf(&b, "- %s\n", s)
	}

	if len(in.BodySamples) > 0 {
		b.WriteString("\nSample bodies:\n")
		for _, s := range in.BodySamples {
			fmt.Fprintf(&b, "---\n%s\n", TruncateBody(s))
		}
	}

	fmt.Fprintf(&b, "\nSend frequency: %s. Unread ratio: %s.\n", in.FrequencyLabel, in.UnreadLabel)

	b.WriteString("\nRespond with exactly two non-empty lines:\n")
	b.WriteString("Line 1: the Tier-1 category name, exactly as listed above.\n")
	b.WriteString("Line 2: the best matching Tier-2 subcategory name, or the literal word None if none fit well.\n")
	b.WriteString("Do not add any other text, explanation, or punctuation.\n")

	if strict {
		b.WriteString("\nYour previous response did not follow this format. Output ONLY the two lines, nothing else.\n")
	}

	return b.String()
}

// ParseResult is the tolerant-parse outcome of a labeling response
// (spec §4.2 step 7).
type ParseResult struct {
	Tier1       string
	Tier2       *string // nil means "None" or rejected
	Rejected    bool
	RejectReason string
}

var linePrefixes = []string{"category:", "tier-1 category:", "tier-1:", "tier1:"}
var tier2Prefixes = []string{"tier-2 subcategory:", "subcategory:", "tier-2:", "tier2:"}
var bulletChars = "-*•"
var rejectPrefixes = []string{"note:", "reason:", "explanation:"}

const maxSubcategoryChars = 80

// ParseLabelingResponse tolerantly parses the model's two-line response
// against the closed Tier1 set and the known Tier2 set under each
// Tier1 parent. It strips label prefixes and bullet markers, accepts
// the Tier1 name on any line, and maps a bare Tier2 name back to its
// parent when the model skips Tier1 entirely.
func ParseLabelingResponse(raw string, tier1 []*schema.TaxonomyLabel, tier2ByParent map[string][]*schema.TaxonomyLabel) ParseResult {
	lines := nonEmptyLines(raw)

	tier1ByLower := map[string]*schema.TaxonomyLabel{}
	for _, l := range tier1 {
		tier1ByLower[strings.ToLower(l.Name)] = l
	}
	tier2ByLower := map[string]*schema.TaxonomyLabel{}
	for _, children := range tier2ByParent {
		for _, c := range children {
			tier2ByLower[strings.ToLower(c.Name)] = c
		}
	}

	var matchedTier1 *schema.TaxonomyLabel
	var tier2Candidate string

	for _, line := range lines {
		cleaned := stripPrefixesAndBullets(line, append(linePrefixes, tier2Prefixes...))
		if l, ok := tier1ByLower[strings.ToLower(cleaned)]; ok {
			matchedTier1 = l
			continue
		}
		if strings.EqualFold(cleaned, "none") {
			continue
		}
		if tier2Candidate == "" {
			tier2Candidate = cleaned
		}
	}

	if matchedTier1 == nil {
		// The model may have returned only a Tier2 name; map back to parent.
		if l, ok := tier2ByLower[strings.ToLower(tier2Candidate)]; ok && l.ParentSlug != nil {
			for _, t1 := range tier1 {
				if t1.Slug == *l.ParentSlug {
					matchedTier1 = t1
					tier2Candidate = l.Name
					break
				}
			}
		}
	}

	if matchedTier1 == nil {
		return ParseResult{Rejected: true, RejectReason: "no recognizable Tier-1 category in response"}
	}

	result := ParseResult{Tier1: matchedTier1.Name}

	if tier2Candidate == "" || strings.EqualFold(tier2Candidate, "none") {
		return result
	}

	if rejectSubcategory(tier2Candidate) {
		result.Tier2 = nil
		return result
	}

	// Prefer canonical casing from C4 over the model's own casing.
	if canonical, ok := tier2ByLower[strings.ToLower(tier2Candidate)]; ok {
		tier2Candidate = canonical.Name
	}
	result.Tier2 = &tier2Candidate
	return result
}

func nonEmptyLines(raw string) []string {
	var out []string
	for _, l := range strings.Split(raw, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			out = append(out, l)
		}
	}
	return out
}

func stripPrefixesAndBullets(line string, prefixes []string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, bulletChars)
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			s = strings.TrimSpace(s[len(p):])
			break
		}
	}
	return s
}

// rejectSubcategory applies spec §4.2 step 7's rejection rules: empty,
// multi-line, over 80 chars, or a meta-commentary prefix.
func rejectSubcategory(candidate string) bool {
	if candidate == "" || len(candidate) > maxSubcategoryChars {
		return true
	}
	if strings.Contains(candidate, "\n") {
		return true
	}
	lower := strings.ToLower(candidate)
	for _, p := range rejectPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

// Tier1Slug returns the slug repository.Slugify would compute for a
// Tier1 category name, used to look up the parent when extending Tier2.
func Tier1Slug(name string) string {
	return repository.Slugify(name)
}
