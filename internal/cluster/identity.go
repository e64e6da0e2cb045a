// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"fmt"
	"math/rand"

	"github.com/google/uuid"
)

// clusterNamespace is the fixed namespace UUID used to derive
// deterministic cluster and vector-point ids, so reruns are idempotent
// (spec §3 invariant: "cluster id is stable across restarts").
var clusterNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// ClusterID computes the deterministic uuid-v5 for a cluster: v5(ns,
// "cluster:" + seedID + ":" + threshold + ":" + labelerVersion) (spec
// §4.2 step 3, §8 round-trip property).
func ClusterID(seedMessageID int64, threshold float64, labelerVersion string) string {
	name := fmt.Sprintf("cluster:%d:%g:%s", seedMessageID, threshold, labelerVersion)
	return uuid.NewSHA1(clusterNamespace, []byte(name)).String()
}

// VectorPointID computes the deterministic uuid-v5 for a message's
// vector point (spec §4.1 step 3(d)).
func VectorPointID(messageID int64) string {
	name := fmt.Sprintf("message:%d", messageID)
	return uuid.NewSHA1(clusterNamespace, []byte(name)).String()
}

// SampleRNG returns a *rand.Rand seeded from the cluster uuid so that
// sample selection is reproducible across reruns (spec §4.2 step 4).
func SampleRNG(clusterID string) *rand.Rand {
	var seed int64
	for _, b := range []byte(clusterID) {
		seed = seed*31 + int64(b)
	}
	return rand.New(rand.NewSource(seed))
}

// ChooseSample picks n distinct indices out of total using rng,
// returning them in ascending order.
func ChooseSample(rng *rand.Rand, total, n int) []int {
	if n >= total {
		out := make([]int, total)
		for i := range out {
			out[i] = i
		}
		return out
	}

	picked := make(map[int]bool, n)
	for len(picked) < n {
		picked[rng.Intn(total)] = true
	}

	out := make([]int, 0, n)
	for idx := range picked {
		out = append(out, idx)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}
