// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package provider

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Fake is an in-memory Provider used by tests and by the CLI's
// dry-run/local-dev path. It is not a mock of a specific vendor's wire
// format — spec.md §1 explicitly keeps that out of scope.
type Fake struct {
	mu       sync.Mutex
	messages map[string]MessageMetadata
	bodies   map[string]MessageBody
	labels   map[string]Label
	nextID   int
}

func NewFake() *Fake {
	return &Fake{
		messages: make(map[string]MessageMetadata),
		bodies:   make(map[string]MessageBody),
		labels:   make(map[string]Label),
	}
}

// Seed registers a message (and optional body) as already present at
// the provider, for use in tests.
func (f *Fake) Seed(meta MessageMetadata, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[meta.ProviderID] = meta
	if body != "" {
		f.bodies[meta.ProviderID] = MessageBody{ProviderID: meta.ProviderID, PlainText: body}
	}
}

func (f *Fake) ListMessages(ctx context.Context, query, pageToken string, pageSize int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ids := make([]string, 0, len(f.messages))
	for id := range f.messages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return f.messages[ids[i]].Timestamp.Before(f.messages[ids[j]].Timestamp)
	})

	start := 0
	if pageToken != "" {
		for i, id := range ids {
			if id == pageToken {
				start = i + 1
				break
			}
		}
	}
	end := start + pageSize
	if end > len(ids) {
		end = len(ids)
	}
	if start > len(ids) {
		start = len(ids)
	}

	var page Page
	for _, id := range ids[start:end] {
		page.Items = append(page.Items, f.messages[id])
	}
	if end < len(ids) {
		page.NextPageToken = ids[end-1]
	}
	return page, nil
}

func (f *Fake) GetMessageMetadata(ctx context.Context, id string) (MessageMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return MessageMetadata{}, fmt.Errorf("provider: fake: message %q not found", id)
	}
	return m, nil
}

func (f *Fake) GetMessageFull(ctx context.Context, id string) (MessageBody, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bodies[id]
	if !ok {
		return MessageBody{}, fmt.Errorf("provider: fake: body for %q not found", id)
	}
	return b, nil
}

func (f *Fake) ModifyLabels(ctx context.Context, id string, add, remove []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return fmt.Errorf("provider: fake: message %q not found", id)
	}
	set := map[string]bool{}
	for _, l := range m.Labels {
		set[l] = true
	}
	for _, l := range remove {
		delete(set, l)
	}
	for _, l := range add {
		set[l] = true
	}
	m.Labels = m.Labels[:0]
	for l := range set {
		m.Labels = append(m.Labels, l)
	}
	sort.Strings(m.Labels)
	f.messages[id] = m
	return nil
}

func (f *Fake) Trash(ctx context.Context, id string) error {
	return f.ModifyLabels(ctx, id, []string{"TRASH"}, nil)
}

func (f *Fake) ListLabels(ctx context.Context) ([]Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Label, 0, len(f.labels))
	for _, l := range f.labels {
		out = append(out, l)
	}
	return out, nil
}

func (f *Fake) CreateLabel(ctx context.Context, name string) (Label, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.labels {
		if l.Name == name {
			return l, nil
		}
	}
	f.nextID++
	l := Label{ID: fmt.Sprintf("label-%d", f.nextID), Name: name}
	f.labels[l.ID] = l
	return l, nil
}

func (f *Fake) UpdateLabel(ctx context.Context, id, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.labels[id]
	if !ok {
		return fmt.Errorf("provider: fake: label %q not found", id)
	}
	l.Name = name
	f.labels[id] = l
	return nil
}

var _ Provider = (*Fake)(nil)
