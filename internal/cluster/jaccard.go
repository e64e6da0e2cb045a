// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import "strings"

// stopwords removed before computing subject-token Jaccard similarity
// (spec §4.2 step 2).
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "for": true, "on": true, "is": true, "are": true,
	"your": true, "you": true, "re": true, "fwd": true, "fw": true, "with": true,
}

const minTokenLength = 3

// SubjectTokens tokenizes a normalized subject into lowercase tokens of
// at least minTokenLength characters, with stopwords removed.
func SubjectTokens(subject string) map[string]bool {
	tokens := make(map[string]bool)
	for _, raw := range strings.FieldsFunc(strings.ToLower(subject), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(raw) < minTokenLength || stopwords[raw] {
			continue
		}
		tokens[raw] = true
	}
	return tokens
}

// JaccardSimilarity computes |a ∩ b| / |a ∪ b| over two token sets.
func JaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	intersection := 0
	for t := range a {
		if b[t] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// jaccardThreshold is the minimum subject-token overlap for two
// same-domain messages to be considered the same cluster candidate
// without falling back to the vector index (spec §4.2 step 2).
const jaccardThreshold = 0.20
