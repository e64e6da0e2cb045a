// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cluster implements the cluster/label engine (C6): seed
// selection, candidate assembly, sampling, analysis labels, the
// taxonomy prompt and its tolerant response parser, and the write path.
package cluster

import (
	"sort"
	"time"
)

const day = 24 * time.Hour

// FrequencyLabel derives an approximate send-frequency label from mean
// gap of sorted timestamps, thresholds in days {2,10,40,150} (spec §4.2
// step 5; thresholds ported from the source's analysis.py).
func FrequencyLabel(timestamps []time.Time) string {
	if len(timestamps) < 2 {
		return "yearly"
	}

	ordered := append([]time.Time(nil), timestamps...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Before(ordered[j]) })

	var total time.Duration
	for i := 1; i < len(ordered); i++ {
		total += ordered[i].Sub(ordered[i-1])
	}
	avg := total / time.Duration(len(ordered)-1)

	switch {
	case avg <= 2*day:
		return "daily"
	case avg <= 10*day:
		return "weekly"
	case avg <= 40*day:
		return "monthly"
	case avg <= 150*day:
		return "quarterly"
	default:
		return "yearly"
	}
}

// UnreadLabel derives an unread-ratio label from a set of is-unread
// flags (spec §4.2 step 5).
func UnreadLabel(isUnread []bool) string {
	if len(isUnread) == 0 {
		return "none"
	}

	unread := 0
	for _, v := range isUnread {
		if v {
			unread++
		}
	}
	ratio := float64(unread) / float64(len(isUnread))

	switch {
	case ratio == 1.0:
		return "all"
	case ratio >= 0.9:
		return "almost all"
	case ratio == 0.0:
		return "none"
	case ratio <= 0.1:
		return "almost none"
	default:
		return "some"
	}
}

// SampleCount returns how many messages to sample for body-fetching,
// by cluster size (spec §4.2 step 4).
func SampleCount(size int) int {
	switch {
	case size <= 5:
		return 1
	case size <= 10:
		return 2
	case size <= 50:
		return 3
	default:
		return 4
	}
}
