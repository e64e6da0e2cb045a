// Package schema holds the plain data types shared across mailpipe's
// packages: messages, clusters, taxonomy labels, outbox rows, and the
// extracted event/payment records. Mirrors the rest of the codebase's
// convention of keeping wire/storage structs separate from behavior.
package schema

import "time"

// Message is the canonical per-message record owned by the message store (C2).
type Message struct {
	ID         int64     `db:"id" json:"id"`
	ProviderID string    `db:"provider_id" json:"provider_id"`
	ThreadID   string    `db:"thread_id" json:"thread_id"`
	Timestamp  time.Time `db:"timestamp" json:"timestamp"`
	IsUnread   bool      `db:"is_unread" json:"is_unread"`

	// ProviderLabels are the raw label ids/names the provider reports for
	// this message. Stored as a Postgres text array (GIN-indexed).
	ProviderLabels []string `db:"provider_labels" json:"provider_labels"`

	FromAddress string `db:"from_address" json:"from_address"`
	FromDomain  string `db:"from_domain" json:"from_domain"`
	ToAddresses []string `db:"to_addresses" json:"to_addresses"`
	CcAddresses []string `db:"cc_addresses" json:"cc_addresses"`

	Subject           string `db:"subject" json:"subject"`
	SubjectNormalized string `db:"subject_normalized" json:"subject_normalized"`

	// Category/Subcategory are write-once: a non-null Category is never
	// overwritten by a labeling pass (see Invariants, spec §3/§8).
	Category       *string `db:"category" json:"category,omitempty"`
	Subcategory    *string `db:"subcategory" json:"subcategory,omitempty"`
	LabelerVersion *string `db:"labeler_version" json:"labeler_version,omitempty"`
	ClusterID      *string `db:"cluster_id" json:"cluster_id,omitempty"`

	ArchivedAt *time.Time `db:"archived_at" json:"archived_at,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Cluster groups unlabelled messages that were labeled together in one
// cluster/label engine iteration (C6).
type Cluster struct {
	ID             string    `db:"id" json:"id"`
	SeedMessageID  int64     `db:"seed_message_id" json:"seed_message_id"`
	Threshold      float64   `db:"similarity_threshold" json:"similarity_threshold"`
	LabelerVersion string    `db:"labeler_version" json:"labeler_version"`
	Size           int       `db:"size" json:"size"`
	FrequencyLabel string    `db:"frequency_label" json:"frequency_label"`
	UnreadLabel    string    `db:"unread_label" json:"unread_label"`
	Category       string    `db:"category" json:"category"`
	Subcategory    *string   `db:"subcategory" json:"subcategory,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TaxonomyLabel is a node in the two-tier taxonomy (C4). Level 1 is the
// closed, seeded Tier-1 set; level 2 is the evolvable Tier-2 set,
// namespaced under its parent slug.
type TaxonomyLabel struct {
	ID              int64     `db:"id" json:"id"`
	Level           int       `db:"level" json:"level"`
	ParentSlug      *string   `db:"parent_slug" json:"parent_slug,omitempty"`
	Slug            string    `db:"slug" json:"slug"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	RetentionDays   *int      `db:"retention_days" json:"retention_days,omitempty"`
	Active          bool      `db:"active" json:"active"`
	ProviderLabelID *string   `db:"provider_label_id" json:"provider_label_id,omitempty"`
	LastSyncStatus  string    `db:"last_sync_status" json:"last_sync_status"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Assignment is the at-most-one-active message -> label edge (C8).
type Assignment struct {
	ID        int64     `db:"id" json:"id"`
	MessageID int64     `db:"message_id" json:"message_id"`
	LabelID   int64     `db:"label_id" json:"label_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// LabelPushOutboxRow is a pending/processed "apply labels" reconciliation
// action (C9).
type LabelPushOutboxRow struct {
	ID          int64      `db:"id" json:"id"`
	MessageID   int64      `db:"message_id" json:"message_id"`
	Reason      string     `db:"reason" json:"reason"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	Error       *string    `db:"error" json:"error,omitempty"`
}

// ArchivePushOutboxRow is a pending/processed "archive" reconciliation
// action (C9/C10). UNIQUE(message_id) — replanning resets processed_at/error.
type ArchivePushOutboxRow struct {
	ID          int64      `db:"id" json:"id"`
	MessageID   int64      `db:"message_id" json:"message_id"`
	Reason      string     `db:"reason" json:"reason"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
	Error       *string    `db:"error" json:"error,omitempty"`
}

// Checkpoint is a durable string key/value row (C1): ingestion watermark,
// current phase marker, or the configured default retention window.
type Checkpoint struct {
	Key       string    `db:"key" json:"key"`
	Value     string    `db:"value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

const (
	CheckpointKeyLastIngestedTimestamp  = "last_ingested_timestamp"
	CheckpointKeyCurrentPhase           = "current_phase"
	CheckpointKeyDefaultRetentionDays   = "default_retention_days"
	CheckpointKeyArchiveMarkerProviderID = "archive_marker_provider_label_id"
)

// DefaultRetentionDays is used when no checkpoint override is present.
const DefaultRetentionDays = 730 // two years
