// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package cluster

import (
	"regexp"
	"strings"
)

var replyForwardPrefix = regexp.MustCompile(`(?i)^\s*(re|fwd|fw)\s*:\s*`)
var whitespaceRun = regexp.MustCompile(`\s+`)

// NormalizeSubject strips leading Re:/Fwd:/Fw: prefixes (repeated) and
// collapses whitespace, lowercasing the result. Spec §8 round-trip
// property: normalize("Re: Fwd: Hello") == normalize("hello").
func NormalizeSubject(subject string) string {
	s := subject
	for {
		stripped := replyForwardPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = stripped
	}
	s = strings.ToLower(strings.TrimSpace(s))
	s = whitespaceRun.ReplaceAllString(s, " ")
	return s
}
