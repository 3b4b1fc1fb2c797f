package pipeline

import (
	"reflect"
	"testing"

	"github.com/aimorme/datewise-backend/internal/domain"
)

func TestInterpretDuration(t *testing.T) {
	cases := []struct {
		name      string
		duration  string
		timeOfDay string
		want      Interpretation
	}{
		{
			name: "full day morning", duration: "full day", timeOfDay: "morning",
			want: Interpretation{TotalHours: 10, StartTime: "10:00", EndTime: "20:00", Activities: 5, Meals: []string{"brunch", "lunch", "dinner"}},
		},
		{
			name: "full day afternoon", duration: "full day", timeOfDay: "afternoon",
			want: Interpretation{TotalHours: 8, StartTime: "12:00", EndTime: "20:00", Activities: 4, Meals: []string{"lunch", "dinner"}},
		},
		{
			name: "full day evening", duration: "full day", timeOfDay: "evening",
			want: Interpretation{TotalHours: 6, StartTime: "15:00", EndTime: "21:00", Activities: 3, Meals: []string{"dinner"}},
		},
		{
			name: "half day morning", duration: "half day", timeOfDay: "morning",
			want: Interpretation{TotalHours: 4, StartTime: "10:00", EndTime: "14:00", Activities: 2, Meals: []string{"brunch", "lunch"}},
		},
		{
			name: "six hours evening", duration: "6 hours", timeOfDay: "evening",
			want: Interpretation{TotalHours: 6, StartTime: "18:00", EndTime: "00:00", Activities: 3, Meals: []string{"dinner"}},
		},
		{
			name: "unparseable defaults to four afternoon hours", duration: "whenever", timeOfDay: "afternoon",
			want: Interpretation{TotalHours: 4, StartTime: "14:00", EndTime: "18:00", Activities: 2, Meals: []string{}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := InterpretDuration(domain.Context{Duration: tc.duration, TimeOfDay: tc.timeOfDay})
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
