// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubjectTokensStripsStopwordsAndShortTokens(t *testing.T) {
	tokens := SubjectTokens("Re: Your Invoice for the Order is Due")
	assert.True(t, tokens["invoice"])
	assert.True(t, tokens["order"])
	assert.True(t, tokens["due"])
	assert.False(t, tokens["the"])
	assert.False(t, tokens["for"])
	assert.False(t, tokens["is"])
	assert.False(t, tokens["re"])
}

func TestSubjectTokensDropsShortWords(t *testing.T) {
	tokens := SubjectTokens("ok to go")
	assert.False(t, tokens["ok"])
	assert.False(t, tokens["to"])
	assert.False(t, tokens["go"])
}

func TestJaccardSimilarityIdenticalSets(t *testing.T) {
	a := SubjectTokens("Invoice for order 1234")
	b := SubjectTokens("Invoice for order 1234")
	assert.Equal(t, 1.0, JaccardSimilarity(a, b))
}

func TestJaccardSimilarityDisjointSets(t *testing.T) {
	a := SubjectTokens("invoice payment")
	b := SubjectTokens("weather forecast")
	assert.Equal(t, 0.0, JaccardSimilarity(a, b))
}

func TestJaccardSimilarityPartialOverlap(t *testing.T) {
	a := map[string]bool{"invoice": true, "order": true}
	b := map[string]bool{"invoice": true, "receipt": true}
	// intersection=1, union=3
	assert.InDelta(t, 1.0/3.0, JaccardSimilarity(a, b), 1e-9)
}

func TestJaccardSimilarityBothEmpty(t *testing.T) {
	assert.Equal(t, 0.0, JaccardSimilarity(map[string]bool{}, map[string]bool{}))
}
