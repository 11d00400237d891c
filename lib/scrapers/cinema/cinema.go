package cinema

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"nightout/lib/telemetry"
	"nightout/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/cinema")

// a "check" record with this status is bookable
const statusBookable = 1

type Showing struct {
	Day   string
	Movie string
	Start TimeOfDay
}

type Client struct {
	http *resty.Client
}

func NewClient() *Client {
	client := resty.New()
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "scrapers/cinema/http")
	return &Client{http: client}
}

type option struct {
	code  string
	label string
}

// AvailableShowings queries the cinema backend for every movie with a
// bookable showing on the given day. One check query per movie, issued
// concurrently; the flattened result keeps the movie option order.
func (c *Client) AvailableShowings(ctx context.Context, day, cinemaUrl string) ([]Showing, error) {
	ctx, span := tracer.Start(ctx, "client:AvailableShowings")
	defer span.End()
	span.SetAttributes(attribute.String("day", day))

	dayCode, movies, err := c.scrapeForms(ctx, day, cinemaUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to resolve cinema forms")
		return nil, err
	}

	byMovie := map[string][]Showing{}
	var errList []error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, movie := range movies {
		movie := movie
		wg.Add(1)
		go func() {
			defer wg.Done()

			showings, err := c.checkMovie(ctx, cinemaUrl, day, dayCode, movie)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errList = append(errList, err)
				return
			}
			byMovie[movie.code] = showings
		}()
	}
	wg.Wait()

	if len(errList) > 0 {
		err := errors.Join(errList...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "check queries failed")
		return nil, err
	}

	var out []Showing
	for _, movie := range movies {
		out = append(out, byMovie[movie.code]...)
	}
	return out, nil
}

func (c *Client) scrapeForms(ctx context.Context, day, cinemaUrl string) (string, []option, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(cinemaUrl)
	if err != nil {
		return "", nil, err
	}
	if res.IsError() {
		return "", nil, fmt.Errorf("fetch %s: unexpected status %d", cinemaUrl, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return "", nil, err
	}

	dayCode := ""
	doc.Find("select[name=day] option").Each(func(i int, opt *goquery.Selection) {
		if textutil.Normalize(opt.Text()) == textutil.Normalize(day) {
			dayCode = opt.AttrOr("value", "")
		}
	})
	if dayCode == "" {
		return "", nil, fmt.Errorf("day %q is not offered by the cinema", day)
	}

	var movies []option
	doc.Find("select[name=movie] option").Each(func(i int, opt *goquery.Selection) {
		code := opt.AttrOr("value", "")
		if code == "" || code == "0" {
			return
		}
		if _, disabled := opt.Attr("disabled"); disabled {
			return
		}
		movies = append(movies, option{
			code:  code,
			label: strings.TrimSpace(opt.Text()),
		})
	})

	return dayCode, movies, nil
}

func (c *Client) checkMovie(ctx context.Context, cinemaUrl, day, dayCode string, movie option) ([]Showing, error) {
	type record struct {
		Status int    `json:"status"`
		Time   string `json:"time"`
	}
	var records []record

	res, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"day":   dayCode,
			"movie": movie.code,
		}).
		SetResult(&records).
		Get(strings.TrimRight(cinemaUrl, "/") + "/check")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("check movie %s: unexpected status %d", movie.code, res.StatusCode())
	}

	var showings []Showing
	for _, r := range records {
		if r.Status != statusBookable {
			continue
		}
		start, err := ParseTimeOfDay(r.Time)
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed showtime", "movie", movie.label, "time", r.Time, "err", err)
			continue
		}
		showings = append(showings, Showing{
			Day:   day,
			Movie: movie.label,
			Start: start,
		})
	}
	return showings, nil
}
