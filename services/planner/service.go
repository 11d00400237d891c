package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"nightout/lib/scrapers/calendar"
	"nightout/lib/scrapers/cinema"
	"nightout/lib/scrapers/links"
	"nightout/lib/scrapers/restaurant"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/planner")

var (
	ErrNoCommonDay = fmt.Errorf("no day works for every participant")
	ErrNoPlanFound = fmt.Errorf("no day has both a matching movie and a free table")
)

// path fragments that identify each section link on the seed page
const (
	calendarFragment   = "calendar"
	cinemaFragment     = "cinema"
	restaurantFragment = "dinner"
)

// Plan is one complete recommendation for the whole group.
type Plan struct {
	Day          string
	Movie        string
	MovieStart   cinema.TimeOfDay
	DinnerWindow restaurant.Window
}

// Result carries the plans plus the restaurant url they were computed
// against, which Book needs to execute a reservation afterwards.
type Result struct {
	Plans         []Plan
	RestaurantUrl string
}

type Service struct {
	links    *links.Client
	calendar *calendar.Client
	cinema   *cinema.Client
	creds    restaurant.Credentials
	policy   Policy
}

func NewService(creds restaurant.Credentials, policy Policy) *Service {
	return &Service{
		links:    links.NewClient(),
		calendar: calendar.NewClient(),
		cinema:   cinema.NewClient(),
		creds:    creds,
		policy:   policy,
	}
}

// FindPlans walks the three sites linked from the seed page and
// computes one plan per day that has both a matching movie and a free
// table. It returns ErrNoCommonDay when the calendars never line up
// and ErrNoPlanFound when they do but no showing/table pair works.
func (s *Service) FindPlans(ctx context.Context, seedUrl string) (Result, error) {
	ctx, span := tracer.Start(ctx, "service:FindPlans")
	defer span.End()
	span.SetAttributes(attribute.String("seed", seedUrl))

	sections, err := s.discoverSections(ctx, seedUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to discover sections")
		return Result{}, err
	}

	slog.InfoContext(ctx, "sections discovered",
		"calendar", sections.calendar,
		"cinema", sections.cinema,
		"restaurant", sections.restaurant,
	)

	calendarPages, err := s.links.Discover(ctx, sections.calendar)
	if err != nil {
		return Result{}, err
	}
	days, err := s.calendar.CommonDays(ctx, calendarPages)
	if err != nil {
		return Result{}, err
	}
	if len(days) == 0 {
		return Result{}, ErrNoCommonDay
	}
	slog.InfoContext(ctx, "common days computed", "days", days)

	showingsByDay, err := s.collectShowings(ctx, days, sections.cinema)
	if err != nil {
		return Result{}, err
	}

	windowsByDay, err := s.collectWindows(ctx, showingsByDay, sections.restaurant)
	if err != nil {
		return Result{}, err
	}

	plans := matchPlans(days, showingsByDay, windowsByDay, s.policy)
	if len(plans) == 0 {
		return Result{}, ErrNoPlanFound
	}
	return Result{
		Plans:         plans,
		RestaurantUrl: sections.restaurant,
	}, nil
}

// Book executes the reservation for one plan through a fresh session:
// login, a discovery pass to pick up the csrf token, then the booking
// submission. The session is owned by this one attempt and dropped
// afterwards.
func (s *Service) Book(ctx context.Context, restaurantUrl string, plan Plan) error {
	ctx, span := tracer.Start(ctx, "service:Book")
	defer span.End()

	client, err := restaurant.NewClient(restaurantUrl)
	if err != nil {
		return err
	}
	state, err := client.Login(ctx, s.creds)
	if err != nil {
		return err
	}
	state, _, err = client.DiscoverSlots(ctx, state, plan.Day, plan.DinnerWindow.StartHour)
	if err != nil {
		return err
	}
	return client.Book(ctx, state, plan.Day, plan.DinnerWindow)
}

type sections struct {
	calendar   string
	cinema     string
	restaurant string
}

func (s *Service) discoverSections(ctx context.Context, seedUrl string) (sections, error) {
	initial, err := s.links.Discover(ctx, seedUrl)
	if err != nil {
		return sections{}, err
	}

	out := sections{
		calendar:   findByPath(initial, calendarFragment),
		cinema:     findByPath(initial, cinemaFragment),
		restaurant: findByPath(initial, restaurantFragment),
	}
	if out.calendar == "" || out.cinema == "" || out.restaurant == "" {
		return sections{}, fmt.Errorf(
			"seed page does not link a calendar, cinema and dinner section: %v", initial)
	}
	return out, nil
}

func findByPath(urls []string, fragment string) string {
	for _, raw := range urls {
		parsed, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if strings.Contains(parsed.Path, fragment) {
			return raw
		}
	}
	return ""
}

// collectShowings fans out one showtime query per common day. Results
// are keyed by day, never by completion order, and a failure anywhere
// discards the whole batch.
func (s *Service) collectShowings(ctx context.Context, days []string, cinemaUrl string) (map[string][]cinema.Showing, error) {
	byDay := map[string][]cinema.Showing{}
	var errList []error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, day := range days {
		day := day
		wg.Add(1)
		go func() {
			defer wg.Done()

			showings, err := s.cinema.AvailableShowings(ctx, day, cinemaUrl)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errList = append(errList, err)
				return
			}
			byDay[day] = showings
		}()
	}
	wg.Wait()

	if len(errList) > 0 {
		return nil, errors.Join(errList...)
	}
	return byDay, nil
}

// collectWindows fans out one slot lookup per distinct (day, earliest
// dinner hour) pair, each through its own freshly authenticated
// session. "No slot" outcomes are expected and simply leave the day
// without windows; fetch and login failures abort the batch.
func (s *Service) collectWindows(ctx context.Context, showingsByDay map[string][]cinema.Showing, restaurantUrl string) (map[string][]restaurant.Window, error) {
	client, err := restaurant.NewClient(restaurantUrl)
	if err != nil {
		return nil, err
	}

	type lookup struct {
		day     string
		minHour int
	}
	seen := map[lookup]bool{}
	var lookups []lookup
	for day, showings := range showingsByDay {
		for _, showing := range showings {
			l := lookup{day: day, minHour: showing.Start.Hour + s.policy.DinnerBufferHours}
			if seen[l] {
				continue
			}
			seen[l] = true
			lookups = append(lookups, l)
		}
	}

	byDay := map[string][]restaurant.Window{}
	haveWindow := map[string]map[int]bool{}
	var errList []error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, l := range lookups {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()

			state, err := client.Login(ctx, s.creds)
			if err == nil {
				_, windows, derr := client.DiscoverSlots(ctx, state, l.day, l.minHour)
				err = derr

				mu.Lock()
				for _, w := range windows {
					if haveWindow[l.day] == nil {
						haveWindow[l.day] = map[int]bool{}
					}
					if haveWindow[l.day][w.StartHour] {
						continue
					}
					haveWindow[l.day][w.StartHour] = true
					byDay[l.day] = append(byDay[l.day], w)
				}
				mu.Unlock()
			}

			if err != nil {
				if errors.Is(err, restaurant.ErrNoSlotForDay) || errors.Is(err, restaurant.ErrNoSlotForTime) {
					slog.DebugContext(ctx, "no table", "day", l.day, "min_hour", l.minHour, "reason", err)
					return
				}
				mu.Lock()
				errList = append(errList, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errList) > 0 {
		return nil, errors.Join(errList...)
	}
	return byDay, nil
}
