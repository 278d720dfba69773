// Package ics parses the portal's calendar export into deadline records.
package ics

import (
	"bytes"
	"errors"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// Defaults for events the export leaves half-filled.
const (
	DefaultTitle       = "Untitled"
	DefaultDescription = "No description"
	UnknownCategory    = "Unknown"
)

// Deadline is the normalized form of a VEVENT from the portal export.
type Deadline struct {
	UID         string
	Title       string
	Description string
	EndTime     *time.Time
	Category    string
}

// ParseDeadlines parses a single ICS payload. Events without a UID are
// skipped; events without a resolvable DTEND keep a nil EndTime.
func ParseDeadlines(body []byte) ([]Deadline, error) {
	if len(body) == 0 {
		return nil, errors.New("empty ICS body")
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	deadlines := make([]Deadline, 0, len(cal.Events()))
	for _, ve := range cal.Events() {
		dl, ok := parseVEvent(ve)
		if !ok {
			continue
		}
		deadlines = append(deadlines, dl)
	}
	return deadlines, nil
}

func parseVEvent(ve *ical.VEvent) (Deadline, bool) {
	var out Deadline

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, false
	}
	out.UID = uidProp.Value

	out.Title = DefaultTitle
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil && strings.TrimSpace(p.Value) != "" {
		out.Title = p.Value
	}

	out.Description = DefaultDescription
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil && strings.TrimSpace(p.Value) != "" {
		out.Description = p.Value
	}

	if end, err := ve.GetEndAt(); err == nil && !end.IsZero() {
		out.EndTime = &end
	}

	raw := ""
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		raw = p.Value
	}
	out.Category = CourseName(raw)

	return out, true
}

// CourseName derives a readable course name from the export's CATEGORIES
// label. Portal labels look like "CS101 - Intro to Systems": the part after
// the last dash is the human name. Very short tails are usually part of a
// course code, so those fall back to the whole label.
func CourseName(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return UnknownCategory
	}
	if !strings.Contains(raw, "-") {
		return raw
	}
	parts := strings.Split(raw, "-")
	name := strings.TrimSpace(parts[len(parts)-1])
	if len(name) > 3 {
		return name
	}
	return raw
}
