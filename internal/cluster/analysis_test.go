// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(daysAgo int) time.Time {
	return time.Now().AddDate(0, 0, -daysAgo)
}

func TestFrequencyLabelBands(t *testing.T) {
	assert.Equal(t, "daily", FrequencyLabel([]time.Time{ts(0), ts(1), ts(2), ts(3)}))
	assert.Equal(t, "weekly", FrequencyLabel([]time.Time{ts(0), ts(7), ts(14)}))
	assert.Equal(t, "monthly", FrequencyLabel([]time.Time{ts(0), ts(30), ts(60)}))
	assert.Equal(t, "quarterly", FrequencyLabel([]time.Time{ts(0), ts(90), ts(180)}))
	assert.Equal(t, "yearly", FrequencyLabel([]time.Time{ts(0), ts(200), ts(400)}))
}

func TestFrequencyLabelInsufficientData(t *testing.T) {
	assert.Equal(t, "yearly", FrequencyLabel(nil))
	assert.Equal(t, "yearly", FrequencyLabel([]time.Time{ts(0)}))
}

func TestUnreadLabelBands(t *testing.T) {
	assert.Equal(t, "all", UnreadLabel([]bool{true, true, true}))
	assert.Equal(t, "none", UnreadLabel([]bool{false, false, false}))
	assert.Equal(t, "almost all", UnreadLabel([]bool{true, true, true, true, true, true, true, true, true, false}))
	assert.Equal(t, "almost none", UnreadLabel([]bool{false, false, false, false, false, false, false, false, false, true}))
	assert.Equal(t, "some", UnreadLabel([]bool{true, false, true, false}))
}

func TestSampleCountBands(t *testing.T) {
	assert.Equal(t, 1, SampleCount(1))
	assert.Equal(t, 1, SampleCount(5))
	assert.Equal(t, 2, SampleCount(6))
	assert.Equal(t, 2, SampleCount(10))
	assert.Equal(t, 3, SampleCount(11))
	assert.Equal(t, 3, SampleCount(50))
	assert.Equal(t, 4, SampleCount(51))
}
