// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package calendar renders an extracted event as an iCalendar VEVENT
// and tracks its publish status idempotently, so republishing the
// same message never creates a duplicate calendar entry (spec's
// supplemented calendar-publish feature, C11).
package calendar

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inboxforge/mailpipe/internal/repository"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

// ICalUIDFor is deterministic and stable so a publish can be retried
// safely: the same message always maps to the same UID.
func ICalUIDFor(messageID int64) string {
	return fmt.Sprintf("mailpipe-%d@mailpipe.local", messageID)
}

// Publisher renders and idempotently tracks calendar publish state for
// extracted events. It does not itself speak to any calendar provider
// (that wiring is provider-specific and out of this module's scope);
// callers take the rendered VEVENT and hand it to whatever calendar
// API they have credentials for.
type Publisher struct {
	Events *repository.EventRepository
}

// PublishResult is returned whether or not a new publish happened.
type PublishResult struct {
	ICalUID      string
	VEvent       string
	AlreadyKnown bool
}

// Publish renders the VEVENT for a message's extracted event and
// records the iCalUID on first publish. A second call for the same
// message returns AlreadyKnown=true instead of minting a new UID.
func (p *Publisher) Publish(ctx context.Context, messageID int64) (*PublishResult, error) {
	rec, err := p.Events.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("calendar: load event for message %d: %w", messageID, err)
	}
	if rec == nil || rec.Status != schema.EventStatusSucceeded {
		return nil, fmt.Errorf("calendar: message %d has no succeeded event extraction", messageID)
	}

	alreadyKnown := rec.CalendarICalUID != nil && *rec.CalendarICalUID != ""
	uid := ICalUIDFor(messageID)
	if alreadyKnown {
		uid = *rec.CalendarICalUID
	}

	vevent, err := RenderVEvent(uid, rec)
	if err != nil {
		return nil, err
	}

	if !alreadyKnown {
		rec.CalendarICalUID = &uid
		if err := p.Events.Upsert(ctx, rec); err != nil {
			return nil, fmt.Errorf("calendar: record iCalUID for message %d: %w", messageID, err)
		}
	}

	return &PublishResult{ICalUID: uid, VEvent: vevent, AlreadyKnown: alreadyKnown}, nil
}

// RenderVEvent renders a minimal RFC 5545 VEVENT block for an extracted
// event. Start/end default to all-day if no start_time was extracted.
func RenderVEvent(uid string, rec *schema.EventRecord) (string, error) {
	if rec.EventDate == nil {
		return "", fmt.Errorf("calendar: event for message %d has no date", rec.MessageID)
	}

	var b strings.Builder
	b.WriteString("BEGIN:VEVENT\r\n")
	fmt.Fprintf(&b, "UID:%s\r\n", uid)
	fmt.Fprintf(&b, "DTSTAMP:%s\r\n", time.Now().UTC().Format("20060102T150405Z"))

	if rec.StartTime != nil {
		start, err := combineDateTime(*rec.EventDate, *rec.StartTime)
		if err == nil {
			fmt.Fprintf(&b, "DTSTART:%s\r\n", start.UTC().Format("20060102T150405Z"))
		}
		if rec.EndTime != nil {
			end, err := combineDateTime(*rec.EventDate, *rec.EndTime)
			if err == nil {
				// end_time <= start_time same-day is a midnight crossing:
				// roll DTEND to the next day so it never precedes DTSTART.
				if !end.After(start) {
					end = end.AddDate(0, 0, 1)
				}
				fmt.Fprintf(&b, "DTEND:%s\r\n", end.UTC().Format("20060102T150405Z"))
			}
		}
	} else {
		fmt.Fprintf(&b, "DTSTART;VALUE=DATE:%s\r\n", rec.EventDate.Format("20060102"))
	}

	summary := "Event"
	if rec.EventName != nil {
		summary = escapeICalText(*rec.EventName)
	}
	fmt.Fprintf(&b, "SUMMARY:%s\r\n", summary)

	if rec.EventType != nil {
		fmt.Fprintf(&b, "CATEGORIES:%s\r\n", escapeICalText(*rec.EventType))
	}
	if rec.EndTimeInferred {
		b.WriteString("X-MAILPIPE-END-TIME-INFERRED:TRUE\r\n")
	}

	b.WriteString("END:VEVENT\r\n")
	return b.String(), nil
}

func combineDateTime(date time.Time, hhmm string) (time.Time, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

func escapeICalText(s string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return replacer.Replace(s)
}
