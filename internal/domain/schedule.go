package domain

import "encoding/json"

// FlexID accepts both JSON strings and numbers. The upstream API is not
// consistent about which of the two it sends for id fields.
type FlexID string

func (f *FlexID) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// ScheduleSlot is one time slot inside a raw schedule record. StartTime and
// EndTime come with sub-second precision ("09:15:00.0000000"); TrainerID may
// hold a single id or a comma-separated list.
type ScheduleSlot struct {
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	TrainerID FlexID `json:"trainerId"`
}

// RawScheduleRecord is one per-day row as returned by the upstream calendar
// endpoint. It is consumed entirely within one sync pass and never persisted.
type RawScheduleRecord struct {
	EventID      FlexID         `json:"eventId"`
	Title        string         `json:"title"`
	EventName    string         `json:"eventName"`
	CategoryName string         `json:"eventCategoryName"`
	TrainerName  string         `json:"trainerName"`
	StartDate    string         `json:"eventStartdate"`
	EndDate      string         `json:"eventEnddate"`
	ScheduleDate string         `json:"scheduleDate"`
	DayNumber    int            `json:"eventDays"`
	Slots        []ScheduleSlot `json:"scheduleSlot"`
}

// TrainerRef is a trainer as referenced by a canonical event: a display name
// and, when the upstream supplied one, a numeric external id.
type TrainerRef struct {
	Name       string `json:"name"`
	ExternalID *int64 `json:"external_id"`
}

// DateEntry is a single calendar occurrence owned by exactly one
// CanonicalEvent. Dates are ISO-8601 (YYYY-MM-DD), times are HH:MM:SS.
type DateEntry struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	DayNumber int    `json:"day_number"`
	IsModule  bool   `json:"is_module"`
}

// CanonicalEvent is the unit of persistence: all raw records sharing one
// external event id collapse into exactly one of these. Dates are kept
// ascending by start date; trainers keep their upstream order.
type CanonicalEvent struct {
	ExternalID string       `json:"external_id"`
	Title      string       `json:"title"`
	EventName  string       `json:"event_name"`
	Category   string       `json:"category"`
	Trainers   []TrainerRef `json:"trainers"`
	Dates      []DateEntry  `json:"dates"`
}
