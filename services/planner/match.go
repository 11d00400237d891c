package planner

import (
	"slices"

	"nightout/lib/scrapers/cinema"
	"nightout/lib/scrapers/restaurant"
)

// Policy decides how much room a plan leaves between the start of the
// movie and the start of dinner.
type Policy struct {
	// a dinner window qualifies for a showing when its start hour is
	// at least the showing's start hour plus this buffer
	DinnerBufferHours int `json:"dinner_buffer_hours"`
}

func DefaultPolicy() Policy {
	return Policy{DinnerBufferHours: 2}
}

// matchPlans pairs showings with dinner windows. Correlation is by day
// identity on both maps; the order of `days` decides the order of the
// output. Each day yields at most one plan: the earliest qualifying
// showing paired with the earliest window that leaves room for it.
func matchPlans(days []string, showingsByDay map[string][]cinema.Showing, windowsByDay map[string][]restaurant.Window, policy Policy) []Plan {
	var plans []Plan

	for _, day := range days {
		showings := slices.Clone(showingsByDay[day])
		windows := windowsByDay[day]
		if len(showings) == 0 || len(windows) == 0 {
			continue
		}

		slices.SortFunc(showings, func(a, b cinema.Showing) int {
			if a.Start.Before(b.Start) {
				return -1
			}
			if b.Start.Before(a.Start) {
				return 1
			}
			return 0
		})

		for _, showing := range showings {
			window, ok := earliestWindowAfter(windows, showing.Start.Hour+policy.DinnerBufferHours)
			if !ok {
				continue
			}
			plans = append(plans, Plan{
				Day:          day,
				Movie:        showing.Movie,
				MovieStart:   showing.Start,
				DinnerWindow: window,
			})
			break
		}
	}

	return plans
}

func earliestWindowAfter(windows []restaurant.Window, minHour int) (restaurant.Window, bool) {
	best := restaurant.Window{}
	found := false
	for _, w := range windows {
		if w.StartHour < minHour {
			continue
		}
		if !found || w.StartHour < best.StartHour {
			best = w
			found = true
		}
	}
	return best, found
}
