package domain

import (
	"testing"
	"time"
)

func TestNormalizeContextFillsDefaults(t *testing.T) {
	july := time.Date(2025, time.July, 10, 12, 0, 0, 0, time.UTC)
	got := NormalizeContext(Context{}, july)

	want := Context{
		Location:  "amsterdam",
		TimeOfDay: "afternoon",
		Season:    "summer",
		Duration:  "4 hours",
		DateType:  "first_date",
	}
	if got != want {
		t.Fatalf("normalized = %+v, want %+v", got, want)
	}
}

func TestNormalizeContextLowercasesAndTrims(t *testing.T) {
	got := NormalizeContext(Context{
		Location:  "  Rotterdam ",
		TimeOfDay: "MORNING",
		Season:    "Winter",
		Duration:  " Full Day ",
		DateType:  "Anniversary",
	}, time.Now())

	if got.Location != "rotterdam" || got.TimeOfDay != "morning" || got.Duration != "full day" {
		t.Fatalf("normalized = %+v", got)
	}
	if got.Season != "winter" || got.DateType != "anniversary" {
		t.Fatalf("normalized = %+v", got)
	}
}

func TestSeasonFollowsMonth(t *testing.T) {
	cases := []struct {
		month time.Month
		want  string
	}{
		{time.January, "winter"},
		{time.April, "spring"},
		{time.August, "summer"},
		{time.October, "autumn"},
		{time.December, "winter"},
	}
	for _, tc := range cases {
		now := time.Date(2025, tc.month, 15, 0, 0, 0, 0, time.UTC)
		if got := NormalizeContext(Context{}, now).Season; got != tc.want {
			t.Fatalf("season for %s = %q, want %q", tc.month, got, tc.want)
		}
	}
}

func TestContextMapRoundTrip(t *testing.T) {
	c := NormalizeContext(Context{Location: "rotterdam", Duration: "full day"}, time.Now())
	m := c.Map()
	if m["location"] != "rotterdam" || m["duration"] != "full day" {
		t.Fatalf("map = %v", m)
	}
	if len(m) != 5 {
		t.Fatalf("map has %d fields, want 5", len(m))
	}
}
