// Package normalize collapses raw per-day schedule records into canonical
// grouped events. It never fails: records that cannot be represented are
// dropped and counted, and the counts are surfaced to the caller.
package normalize

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasjahn/simplyOrg-connector/internal/domain"
)

// Options carries the business assumptions baked into normalization. All
// fields are defaulted, the values match what the upstream actually sends.
type Options struct {
	// RentalCategory marks room-rental rows, which are never synced.
	RentalCategory string
	// CourseCategory marks multi-module course rows (sets the module flag).
	CourseCategory string
	// DefaultStartTime/DefaultEndTime fill in when a record has no slot.
	DefaultStartTime string
	DefaultEndTime   string
}

func DefaultOptions() Options {
	return Options{
		RentalCategory:   "Einmietung",
		CourseCategory:   "Lehrgang",
		DefaultStartTime: "09:00:00",
		DefaultEndTime:   "16:00:00",
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.RentalCategory == "" {
		o.RentalCategory = def.RentalCategory
	}
	if o.CourseCategory == "" {
		o.CourseCategory = def.CourseCategory
	}
	if o.DefaultStartTime == "" {
		o.DefaultStartTime = def.DefaultStartTime
	}
	if o.DefaultEndTime == "" {
		o.DefaultEndTime = def.DefaultEndTime
	}
	return o
}

// Result is the outcome of one normalization: events in first-seen order plus
// the per-rule exclusion counts.
type Result struct {
	Events   []domain.CanonicalEvent
	Excluded domain.ExclusionCounts
}

// daySuffixRe matches the trailing day-of-series marker the upstream appends
// to per-day titles, e.g. "Training Tag - 3".
var daySuffixRe = regexp.MustCompile(`\s*Tag - \d+$`)

const moduleKeyword = "modul"

// Events groups raw records by external event id. The first record of a key
// initializes the canonical event (cleaned title, aligned trainer list);
// every record of the key, the first included, contributes one date entry.
// Date entries are sorted ascending by start date with a stable, byte-wise
// string comparison; ISO-8601 dates make lexical order chronological.
func Events(records []domain.RawScheduleRecord, opts Options) Result {
	opts = opts.withDefaults()

	var res Result
	index := make(map[string]int, len(records))

	for _, rec := range records {
		externalID := strings.TrimSpace(rec.EventID.String())
		if externalID == "" {
			res.Excluded.MissingID++
			continue
		}
		if strings.TrimSpace(rec.Title) == "" {
			res.Excluded.MissingTitle++
			continue
		}
		if rec.CategoryName == opts.RentalCategory {
			res.Excluded.RoomRental++
			continue
		}
		if strings.TrimSpace(rec.TrainerName) == "" {
			res.Excluded.MissingTrainer++
			continue
		}

		pos, seen := index[externalID]
		if !seen {
			res.Events = append(res.Events, domain.CanonicalEvent{
				ExternalID: externalID,
				Title:      CleanTitle(rec.Title),
				EventName:  rec.EventName,
				Category:   rec.CategoryName,
				Trainers:   AlignTrainers(rec.TrainerName, firstSlotTrainerID(rec)),
			})
			pos = len(res.Events) - 1
			index[externalID] = pos
		}

		res.Events[pos].Dates = append(res.Events[pos].Dates, dateEntry(rec, opts))
	}

	for i := range res.Events {
		dates := res.Events[i].Dates
		sort.SliceStable(dates, func(a, b int) bool {
			return dates[a].StartDate < dates[b].StartDate
		})
	}

	return res
}

// CleanTitle strips the trailing " Tag - <n>" day marker from a per-day row
// title so that all rows of a series carry the same canonical title.
func CleanTitle(title string) string {
	return strings.TrimSpace(daySuffixRe.ReplaceAllString(title, ""))
}

// AlignTrainers pairs a comma-separated trainer name list with a
// comma-separated trainer id list by position: the name at index i gets the
// id at index i, a short id list leaves trailing names without ids, and
// surplus ids are ignored. An empty name segment is dropped but still
// consumes its id slot.
func AlignTrainers(names, ids string) []domain.TrainerRef {
	nameParts := strings.Split(names, ",")

	var idParts []string
	if strings.TrimSpace(ids) != "" {
		idParts = strings.Split(ids, ",")
	}

	refs := make([]domain.TrainerRef, 0, len(nameParts))
	for i, raw := range nameParts {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		ref := domain.TrainerRef{Name: name}
		if i < len(idParts) {
			if id, err := strconv.ParseInt(strings.TrimSpace(idParts[i]), 10, 64); err == nil {
				ref.ExternalID = &id
			}
		}
		refs = append(refs, ref)
	}
	return refs
}

func dateEntry(rec domain.RawScheduleRecord, opts Options) domain.DateEntry {
	date := dateOnly(rec.ScheduleDate)
	if date == "" {
		date = dateOnly(rec.StartDate)
	}

	entry := domain.DateEntry{
		StartDate: date,
		EndDate:   date,
		StartTime: opts.DefaultStartTime,
		EndTime:   opts.DefaultEndTime,
		DayNumber: 1,
		IsModule:  isModule(rec, opts),
	}

	if rec.DayNumber > 0 {
		entry.DayNumber = rec.DayNumber
	}

	if len(rec.Slots) > 0 {
		if t := truncateSubSeconds(rec.Slots[0].StartTime); t != "" {
			entry.StartTime = t
		}
		if t := truncateSubSeconds(rec.Slots[0].EndTime); t != "" {
			entry.EndTime = t
		}
	}

	return entry
}

func isModule(rec domain.RawScheduleRecord, opts Options) bool {
	if rec.CategoryName == opts.CourseCategory {
		return true
	}
	return strings.Contains(strings.ToLower(rec.EventName), moduleKeyword)
}

func firstSlotTrainerID(rec domain.RawScheduleRecord) string {
	if len(rec.Slots) == 0 {
		return ""
	}
	return rec.Slots[0].TrainerID.String()
}

// truncateSubSeconds drops the sub-second tail the upstream sends on slot
// times ("09:15:00.0000000" -> "09:15:00").
func truncateSubSeconds(t string) string {
	t = strings.TrimSpace(t)
	if i := strings.IndexByte(t, '.'); i >= 0 {
		t = t[:i]
	}
	return t
}

// dateOnly keeps the calendar-date part of a value that may carry a time
// component ("2025-01-10T00:00:00" -> "2025-01-10").
func dateOnly(d string) string {
	d = strings.TrimSpace(d)
	if i := strings.IndexByte(d, 'T'); i >= 0 {
		d = d[:i]
	}
	return d
}
