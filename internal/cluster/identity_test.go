// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterIDIsDeterministic(t *testing.T) {
	a := ClusterID(42, 0.8, "v1")
	b := ClusterID(42, 0.8, "v1")
	assert.Equal(t, a, b)
}

func TestClusterIDVariesWithInputs(t *testing.T) {
	base := ClusterID(42, 0.8, "v1")
	assert.NotEqual(t, base, ClusterID(43, 0.8, "v1"))
	assert.NotEqual(t, base, ClusterID(42, 0.7, "v1"))
	assert.NotEqual(t, base, ClusterID(42, 0.8, "v2"))
}

func TestVectorPointIDIsDeterministic(t *testing.T) {
	a := VectorPointID(7)
	b := VectorPointID(7)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, VectorPointID(8))
}

func TestSampleRNGIsDeterministicPerClusterID(t *testing.T) {
	id := ClusterID(1, 0.5, "v1")
	r1 := SampleRNG(id)
	r2 := SampleRNG(id)
	assert.Equal(t, r1.Intn(1000), r2.Intn(1000))
}

func TestChooseSampleReturnsAllWhenNExceedsTotal(t *testing.T) {
	rng := SampleRNG("fixed-seed")
	out := ChooseSample(rng, 3, 5)
	assert.Equal(t, []int{0, 1, 2}, out)
}

func TestChooseSamplePicksDistinctSortedIndices(t *testing.T) {
	rng := SampleRNG("fixed-seed")
	out := ChooseSample(rng, 100, 10)
	assert.Len(t, out, 10)

	seen := map[int]bool{}
	for i, idx := range out {
		assert.False(t, seen[idx], "index %d repeated", idx)
		seen[idx] = true
		assert.True(t, idx >= 0 && idx < 100)
		if i > 0 {
			assert.True(t, out[i-1] < idx, "output must be ascending")
		}
	}
}
