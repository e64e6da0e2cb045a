// Copyright (C) mailpipe authors.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/inboxforge/mailpipe/internal/llmclient"
	"github.com/inboxforge/mailpipe/pkg/schema"
)

const eventPromptVersion = "event-v1"

// legacyEventTypeSynonyms maps older/free-form model outputs onto the
// closed EventType set (ported from the legacy extractor's
// _ALLOWED_EVENT_TYPES + legacy_to_new tables).
var legacyEventTypeSynonyms = map[string]schema.EventType{
	"theatre": schema.EventTypeTheatre,
	"theater": schema.EventTypeTheatre,
	"comedy":  schema.EventTypeComedy,
	"opera":   schema.EventTypeOpera,
	"ballet":  schema.EventTypeBallet,
	"cinema":  schema.EventTypeCinema,
	"movie":   schema.EventTypeCinema,
	"film":    schema.EventTypeCinema,
	"social":  schema.EventTypeSocial,
	"other":   schema.EventTypeOther,

	"concert":     schema.EventTypeOther,
	"gig":         schema.EventTypeOther,
	"music":       schema.EventTypeOther,
	"sports":      schema.EventTypeOther,
	"sport":       schema.EventTypeOther,
	"travel":      schema.EventTypeOther,
	"meeting":     schema.EventTypeOther,
	"dinner":      schema.EventTypeSocial,
	"restaurant":  schema.EventTypeSocial,
	"party":       schema.EventTypeSocial,
	"appointment": schema.EventTypeOther,
}

// normalizeEventType maps any model-provided type onto the closed set,
// defaulting to Other rather than leaking a free-form string.
func normalizeEventType(raw string) schema.EventType {
	raw = strings.TrimSpace(raw)
	for _, t := range schema.EventTypes {
		if raw == string(t) {
			return t
		}
	}
	if t, ok := legacyEventTypeSynonyms[strings.ToLower(raw)]; ok {
		return t
	}
	return schema.EventTypeOther
}

// EventExtractor calls the generation model once per message and
// normalizes the result into an EventRecord.
type EventExtractor struct {
	LLM   *llmclient.Client
	Model string
}

func buildEventExtractionPrompt(subject, fromDomain, internalDateISO, body string) string {
	var b strings.Builder
	b.WriteString("Extract calendar event details from this email, if any exist.\n")
	fmt.Fprintf(&b, "Subject: %s\n", subject)
	fmt.Fprintf(&b, "From domain: %s\n", fromDomain)
	fmt.Fprintf(&b, "Received: %s\n\n", internalDateISO)
	b.WriteString("Body:\n")
	b.WriteString(body)
	b.WriteString("\n\nRespond with a single JSON object with keys: ")
	b.WriteString("event_name, event_type (one of Theatre, Comedy, Opera, Ballet, Cinema, Social, Other), ")
	b.WriteString("event_date (YYYY-MM-DD), start_time (HH:MM), end_time (HH:MM or null), timezone, confidence (0-1), notes.\n")
	b.WriteString("If this email does not describe a single dated event, set event_name to null.\n")
	b.WriteString("Output only the JSON object, no other text.\n")
	return b.String()
}

// Extract runs one event extraction call for a message. A nil result
// with a nil error means the model found no event to extract.
func (x *EventExtractor) Extract(ctx context.Context, subject, fromDomain string, internalDate time.Time, body string) (*schema.EventRecord, error) {
	prompt := buildEventExtractionPrompt(subject, fromDomain, internalDate.UTC().Format(time.RFC3339), body)

	raw, err := x.LLM.Generate(ctx, x.Model, prompt)
	if err != nil {
		return nil, fmt.Errorf("extract: event model call: %w", err)
	}

	obj, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("extract: event response parse: %w", err)
	}

	eventName := stringField(obj, "event_name")
	if eventName == nil {
		return nil, nil
	}

	rec := &schema.EventRecord{
		Status:        schema.EventStatusSucceeded,
		EventName:     eventName,
		Timezone:      stringField(obj, "timezone"),
		Model:         x.Model,
		PromptVersion: eventPromptVersion,
		RawOutput:     raw,
	}

	if et := stringField(obj, "event_type"); et != nil {
		normalized := string(normalizeEventType(*et))
		rec.EventType = &normalized
	}

	eventDate := parseISODate(stringField(obj, "event_date"))
	startTime := stringField(obj, "start_time")
	endTime := stringField(obj, "end_time")

	if eventDate != nil {
		rec.EventDate = eventDate
	}
	rec.StartTime = normalizeHHMM(startTime)
	rec.EndTime = normalizeHHMM(endTime)

	if rec.EndTime == nil && eventDate != nil && rec.StartTime != nil {
		eventType := schema.EventTypeOther
		if rec.EventType != nil {
			eventType = schema.EventType(*rec.EventType)
		}
		if inferred, ok := inferEndTime(eventType, *rec.StartTime); ok {
			rec.EndTime = &inferred
			rec.EndTimeInferred = true
		}
	}

	return rec, nil
}

// inferEndTime adds the event type's default duration to start. The
// result is a clock time only: when the duration crosses midnight it
// wraps to an early-morning time (23:00 + 150m gives "01:30").
func inferEndTime(eventType schema.EventType, startHHMM string) (string, bool) {
	start, err := time.Parse("15:04", startHHMM)
	if err != nil {
		return "", false
	}
	minutes, ok := schema.DefaultDurationMinutesByType[eventType]
	if !ok {
		minutes = schema.DefaultDurationMinutesByType[schema.EventTypeOther]
	}
	end := start.Add(time.Duration(minutes) * time.Minute)
	return end.Format("15:04"), true
}

func normalizeHHMM(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			out := t.Format("15:04")
			return &out
		}
	}
	return nil
}

func parseISODate(v *string) *time.Time {
	if v == nil {
		return nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*v))
	if err != nil {
		return nil
	}
	return &t
}
