// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package provider declares the abstract mail-provider RPC surface
// (spec.md §6). Concrete wire shapes (OAuth, REST payloads) are out of
// scope per spec.md §1 — callers depend only on this interface.
package provider

import (
	"context"
	"strconv"
	"time"
)

// MessageMetadata is what the ingestor (C5) fetches per message: no
// bodies, just headers/flags (spec §4.1 step 1).
type MessageMetadata struct {
	ProviderID  string
	ThreadID    string
	Timestamp   time.Time
	IsUnread    bool
	Labels      []string
	FromAddress string
	ToAddresses []string
	CcAddresses []string
	Subject     string
}

// MessageBody is the full message body, fetched only for sampled
// messages (C6 step 4) or extraction input (C11).
type MessageBody struct {
	ProviderID string
	PlainText  string
}

// Label is a provider-side label/tag.
type Label struct {
	ID   string
	Name string
}

// Page is one page of a list_messages query result.
type Page struct {
	Items         []MessageMetadata
	NextPageToken string
}

// Provider is the abstract mail-provider RPC surface named in spec §6:
// list_messages, get_message_metadata, get_message_full, modify_labels,
// trash, list_labels, create_label, update_label.
type Provider interface {
	ListMessages(ctx context.Context, query string, pageToken string, pageSize int) (Page, error)
	GetMessageMetadata(ctx context.Context, id string) (MessageMetadata, error)
	GetMessageFull(ctx context.Context, id string) (MessageBody, error)
	ModifyLabels(ctx context.Context, id string, add, remove []string) error
	Trash(ctx context.Context, id string) error
	ListLabels(ctx context.Context) ([]Label, error)
	CreateLabel(ctx context.Context, name string) (Label, error)
	UpdateLabel(ctx context.Context, id, name string) error
}

// AfterQuery builds the provider query-language fragment for paging
// since a unix-seconds timestamp (spec §6: "after:<unix-seconds>").
func AfterQuery(since time.Time) string {
	if since.IsZero() {
		return ""
	}
	return "after:" + strconv.FormatInt(since.Unix(), 10)
}
