package domain

import (
	"strings"
	"time"
)

// Context is the immutable date context attached to a request. It is
// normalized once at submission and carried verbatim through every pipeline
// stage; stage outputs echo it back unchanged so downstream consumers never
// reconstruct it from partial data.
type Context struct {
	Location  string `json:"location"`
	TimeOfDay string `json:"time_of_day"`
	Season    string `json:"season"`
	Duration  string `json:"duration"`
	DateType  string `json:"date_type"`
}

const (
	DefaultLocation = "amsterdam"
	DefaultTime     = "afternoon"
	DefaultDuration = "4 hours"
	DefaultDateType = "first_date"
)

// NormalizeContext lowercases and trims every field and fills defaults for
// anything missing. The season default follows the calendar month of now.
func NormalizeContext(c Context, now time.Time) Context {
	norm := func(s, def string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			return def
		}
		return s
	}
	return Context{
		Location:  norm(c.Location, DefaultLocation),
		TimeOfDay: norm(c.TimeOfDay, DefaultTime),
		Season:    norm(c.Season, seasonOf(now)),
		Duration:  norm(c.Duration, DefaultDuration),
		DateType:  norm(c.DateType, DefaultDateType),
	}
}

func seasonOf(now time.Time) string {
	switch now.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "autumn"
	}
}

// Map returns the context as a generic JSON object, used when embedding it
// into stage outputs.
func (c Context) Map() map[string]any {
	return map[string]any{
		"location":    c.Location,
		"time_of_day": c.TimeOfDay,
		"season":      c.Season,
		"duration":    c.Duration,
		"date_type":   c.DateType,
	}
}
