package pipeline

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aimorme/datewise-backend/internal/domain"
)

// Interpretation is the concrete shape of a date window derived from the
// free-text duration plus time of day. The optimizer builds (and validates)
// itineraries against it.
type Interpretation struct {
	TotalHours int      `json:"total_hours"`
	StartTime  string   `json:"start_time"`
	EndTime    string   `json:"end_time"`
	Activities int      `json:"activities_count"`
	Meals      []string `json:"meals_included"`
}

// InterpretDuration maps duration phrasing to a concrete window.
//
//	full day  + morning   -> 10h, 10:00-20:00, 5 activities
//	full day  + afternoon ->  8h, 12:00-20:00, 4 activities
//	full day  + evening   ->  6h, 15:00-21:00, 3 activities
//	half day              ->  4h starting 10:00/14:00/18:00, 2 activities
//	"N hours"             ->  N h starting 10:00/14:00/18:00
func InterpretDuration(c domain.Context) Interpretation {
	duration := strings.ToLower(c.Duration)
	timeOfDay := strings.ToLower(c.TimeOfDay)

	if strings.Contains(duration, "full day") || strings.Contains(duration, "all day") {
		switch timeOfDay {
		case "morning":
			return Interpretation{TotalHours: 10, StartTime: "10:00", EndTime: "20:00", Activities: 5, Meals: []string{"brunch", "lunch", "dinner"}}
		case "evening":
			return Interpretation{TotalHours: 6, StartTime: "15:00", EndTime: "21:00", Activities: 3, Meals: []string{"dinner"}}
		default:
			return Interpretation{TotalHours: 8, StartTime: "12:00", EndTime: "20:00", Activities: 4, Meals: []string{"lunch", "dinner"}}
		}
	}

	if strings.Contains(duration, "half day") {
		start := startHourFor(timeOfDay)
		return Interpretation{
			TotalHours: 4,
			StartTime:  clockTime(start),
			EndTime:    clockTime(start + 4),
			Activities: 2,
			Meals:      mealsForWindow(start, start+4),
		}
	}

	hours := parseHours(duration)
	start := startHourFor(timeOfDay)
	return Interpretation{
		TotalHours: hours,
		StartTime:  clockTime(start),
		EndTime:    clockTime(start + hours),
		Activities: activitiesForHours(hours),
		Meals:      mealsForWindow(start, start+hours),
	}
}

func startHourFor(timeOfDay string) int {
	switch timeOfDay {
	case "morning":
		return 10
	case "evening":
		return 18
	default:
		return 14
	}
}

// parseHours pulls the first integer out of phrasing like "4 hours" or
// "about 6 hrs". Unparseable durations default to 4.
func parseHours(duration string) int {
	fields := strings.FieldsFunc(duration, func(r rune) bool {
		return r < '0' || r > '9'
	})
	for _, f := range fields {
		if n, err := strconv.Atoi(f); err == nil && n > 0 && n <= 16 {
			return n
		}
	}
	return 4
}

func activitiesForHours(hours int) int {
	switch {
	case hours >= 8:
		n := hours / 2
		if n < 4 {
			n = 4
		}
		if n > 5 {
			n = 5
		}
		return n
	case hours >= 6:
		return 3
	case hours >= 4:
		return 2
	default:
		return 1
	}
}

func mealsForWindow(start, end int) []string {
	meals := []string{}
	if start <= 11 && end >= 12 {
		meals = append(meals, "brunch")
	}
	if start <= 13 && end >= 13 {
		meals = append(meals, "lunch")
	}
	if end >= 19 {
		meals = append(meals, "dinner")
	}
	return meals
}

func clockTime(hour int) string {
	for hour >= 24 {
		hour -= 24
	}
	return fmt.Sprintf("%02d:00", hour)
}
