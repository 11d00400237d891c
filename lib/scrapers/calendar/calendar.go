package calendar

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

var tracer = otel.Tracer("scrapers/calendar")

// the status cell text that marks a participant as free on a day
const freeSentinel = "ok"

type Client struct {
	http *resty.Client
}

func NewClient() *Client {
	client := resty.New()
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "scrapers/calendar/http")
	return &Client{http: client}
}

type entry struct {
	participant string
	day         string
	free        bool
}

// CommonDays fetches one calendar page per participant and returns the
// weekday labels on which every participant is free. The pages are
// independent, so they are fetched as one concurrent batch; any page
// answering with a non-success status discards the whole batch. A
// weekday counts only when each page carries a free cell for it; a
// page without an entry for some day makes that day unavailable.
func (c *Client) CommonDays(ctx context.Context, pages []string) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:CommonDays")
	defer span.End()
	span.SetAttributes(attribute.Int("pages", len(pages)))

	// results stay keyed by page index, never by completion order
	results := make([][]entry, len(pages))
	var errList []error
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, page := range pages {
		i, page := i, page
		wg.Add(1)
		go func() {
			defer wg.Done()

			entries, err := c.scrapePage(ctx, page)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errList = append(errList, err)
				return
			}
			results[i] = entries
		}()
	}
	wg.Wait()

	if len(errList) > 0 {
		err := errors.Join(errList...)
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to scrape calendar pages")
		return nil, err
	}

	freeCount := map[string]int{}
	var dayOrder []string

	for _, entries := range results {
		// dedupe per page so a repeated row cannot count twice
		pageFree := map[string]bool{}
		for _, e := range entries {
			if !e.free || pageFree[e.day] {
				continue
			}
			pageFree[e.day] = true

			slog.DebugContext(ctx, "participant free", "participant", e.participant, "day", e.day)
			if freeCount[e.day] == 0 {
				dayOrder = append(dayOrder, e.day)
			}
			freeCount[e.day]++
		}
	}

	var common []string
	for _, day := range dayOrder {
		if freeCount[day] == len(pages) {
			common = append(common, day)
		}
	}
	return common, nil
}

func (c *Client) scrapePage(ctx context.Context, page string) ([]entry, error) {
	res, err := c.http.R().
		SetContext(ctx).
		Get(page)
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", page, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return nil, err
	}

	participant := doc.Find("h2").First().Text()

	days := doc.Find("th")
	cells := doc.Find("td")

	var entries []entry
	days.Each(func(i int, day *goquery.Selection) {
		status := cells.Eq(i)
		entries = append(entries, entry{
			participant: participant,
			day:         strings.TrimSpace(day.Text()),
			free:        textutil.Normalize(status.Text()) == freeSentinel,
		})
	})
	return entries, nil
}
