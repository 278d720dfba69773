package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func calendar(events ...string) []byte {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Course Portal//Calendar Export//EN",
	}
	lines = append(lines, events...)
	lines = append(lines, "END:VCALENDAR", "")
	return []byte(strings.Join(lines, "\r\n"))
}

func TestParseDeadlines(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:assign-42@portal",
		"SUMMARY:Homework 3 is due",
		"DESCRIPTION:Submit via the portal",
		"CATEGORIES:CS101 - Intro to Systems",
		"DTSTART:20260914T120000Z",
		"DTEND:20260915T120000Z",
		"END:VEVENT",
	)

	deadlines, err := ParseDeadlines(body)
	require.NoError(t, err)
	require.Len(t, deadlines, 1)

	dl := deadlines[0]
	assert.Equal(t, "assign-42@portal", dl.UID)
	assert.Equal(t, "Homework 3 is due", dl.Title)
	assert.Equal(t, "Submit via the portal", dl.Description)
	assert.Equal(t, "Intro to Systems", dl.Category)
	require.NotNil(t, dl.EndTime)
	assert.Equal(t, time.Date(2026, 9, 15, 12, 0, 0, 0, time.UTC), dl.EndTime.UTC())
}

func TestParseDeadlinesDefaults(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"UID:bare@portal",
		"END:VEVENT",
	)

	deadlines, err := ParseDeadlines(body)
	require.NoError(t, err)
	require.Len(t, deadlines, 1)

	dl := deadlines[0]
	assert.Equal(t, DefaultTitle, dl.Title)
	assert.Equal(t, DefaultDescription, dl.Description)
	assert.Equal(t, UnknownCategory, dl.Category)
	assert.Nil(t, dl.EndTime)
}

func TestParseDeadlinesSkipsEventsWithoutUID(t *testing.T) {
	body := calendar(
		"BEGIN:VEVENT",
		"SUMMARY:Orphan event",
		"END:VEVENT",
		"BEGIN:VEVENT",
		"UID:kept@portal",
		"SUMMARY:Kept event",
		"END:VEVENT",
	)

	deadlines, err := ParseDeadlines(body)
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	assert.Equal(t, "kept@portal", deadlines[0].UID)
}

func TestParseDeadlinesEmptyBody(t *testing.T) {
	_, err := ParseDeadlines(nil)
	assert.Error(t, err)
}

func TestCourseName(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"CS101 - Intro to Systems", "Intro to Systems"},
		{"AB", "AB"},
		{"CS101 - AB", "CS101 - AB"},
		{"  Operating Systems  ", "Operating Systems"},
		{"", UnknownCategory},
		{"A - B - Distributed Systems", "Distributed Systems"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, CourseName(tc.raw), "raw=%q", tc.raw)
	}
}
