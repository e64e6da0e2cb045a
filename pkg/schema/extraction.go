package schema

import "time"

// EventStatus is the outcome of an event extraction attempt.
type EventStatus string

const (
	EventStatusQueued    EventStatus = "queued"
	EventStatusSucceeded EventStatus = "succeeded"
	EventStatusNoEvent   EventStatus = "no_event"
	EventStatusFailed    EventStatus = "failed"
)

// EventType is the closed set an extracted event is normalized into.
// Legacy rows may violate this (the "NOT VALID" constraint is
// intentionally non-validating, see spec §3) but updates must normalize
// before writing.
type EventType string

const (
	EventTypeTheatre EventType = "Theatre"
	EventTypeComedy  EventType = "Comedy"
	EventTypeOpera   EventType = "Opera"
	EventTypeBallet  EventType = "Ballet"
	EventTypeCinema  EventType = "Cinema"
	EventTypeSocial  EventType = "Social"
	EventTypeOther   EventType = "Other"
)

// EventRecord is the per-message extracted calendar event (C11). PK = MessageID.
type EventRecord struct {
	MessageID        int64       `db:"message_id" json:"message_id"`
	Status           EventStatus `db:"status" json:"status"`
	EventName        *string     `db:"event_name" json:"event_name,omitempty"`
	EventDate        *time.Time  `db:"event_date" json:"event_date,omitempty"`
	StartTime        *string     `db:"start_time" json:"start_time,omitempty"`
	EndTime          *string     `db:"end_time" json:"end_time,omitempty"`
	Timezone         *string     `db:"timezone" json:"timezone,omitempty"`
	EventType        *string     `db:"event_type" json:"event_type,omitempty"`
	EndTimeInferred  bool        `db:"end_time_inferred" json:"end_time_inferred"`
	CalendarEventID  *string     `db:"calendar_event_id" json:"calendar_event_id,omitempty"`
	CalendarICalUID  *string     `db:"calendar_ical_uid" json:"calendar_ical_uid,omitempty"`
	Model            string      `db:"model" json:"model"`
	PromptVersion    string      `db:"prompt_version" json:"prompt_version"`
	RawOutput        string      `db:"raw_output" json:"raw_output"`
	Error            *string     `db:"error" json:"error,omitempty"`
	CreatedAt        time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at" json:"updated_at"`
}

// PaymentRecord is the per-message extracted payment (C11). PK = MessageID.
type PaymentRecord struct {
	MessageID     int64      `db:"message_id" json:"message_id"`
	Status        EventStatus `db:"status" json:"status"`
	ItemName      *string    `db:"item_name" json:"item_name,omitempty"`
	VendorName    *string    `db:"vendor_name" json:"vendor_name,omitempty"`
	ItemCategory  *string    `db:"item_category" json:"item_category,omitempty"`
	AmountMinor   *int64     `db:"amount_minor" json:"amount_minor,omitempty"` // fixed 2-decimal, stored as minor units
	Currency      *string    `db:"currency" json:"currency,omitempty"`
	IsRecurring   bool       `db:"is_recurring" json:"is_recurring"`
	Frequency     *string    `db:"frequency" json:"frequency,omitempty"`
	PaymentDate   *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	Fingerprint   *string    `db:"fingerprint" json:"fingerprint,omitempty"`
	Model         string     `db:"model" json:"model"`
	PromptVersion string     `db:"prompt_version" json:"prompt_version"`
	RawOutput     string     `db:"raw_output" json:"raw_output"`
	Error         *string    `db:"error" json:"error,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Allowed closed sets for payment normalization (grounded on the legacy
// Python extractor's _ALLOWED_CATEGORIES / _ALLOWED_FREQUENCIES tables).
var (
	PaymentCategories = []string{"Food", "Entertainment", "Technology", "Lifestyle", "Domestic Bills", "Other"}
	PaymentFrequencies = []string{"daily", "weekly", "biweekly", "monthly", "quarterly", "yearly"}
)

// EventTypes lists the closed set, in prompt-rendering order.
var EventTypes = []EventType{
	EventTypeTheatre, EventTypeComedy, EventTypeOpera, EventTypeBallet,
	EventTypeCinema, EventTypeSocial, EventTypeOther,
}

// DefaultDurationMinutesByType mirrors the legacy heuristics table used to
// infer a missing end time from event type + start time.
var DefaultDurationMinutesByType = map[EventType]int{
	EventTypeTheatre: 150,
	EventTypeComedy:  120,
	EventTypeOpera:   210,
	EventTypeBallet:  180,
	EventTypeCinema:  130,
	EventTypeSocial:  120,
	EventTypeOther:   120,
}
