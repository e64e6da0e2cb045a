// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package embedtext builds the canonical embedding text for a message,
// shared by the ingestor (C5, which computes and stores it) and the
// cluster engine (C6, which recomputes it on demand for the vector
// fallback candidate search).
package embedtext

import (
	"fmt"

	"github.com/inboxforge/mailpipe/pkg/schema"
)

// For renders the fixed-format embedding text (subject, from-domain,
// is-unread) spec §4.1 step 3(b) requires.
func For(m *schema.Message) string {
	return fmt.Sprintf("subject: %s\nfrom_domain: %s\nis_unread: %t", m.Subject, m.FromDomain, m.IsUnread)
}
