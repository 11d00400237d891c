package restaurant

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"nightout/lib/telemetry"
	"nightout/lib/textutil"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scrapers/restaurant")

var (
	ErrLoginFailed   = fmt.Errorf("restaurant login did not hand over a session")
	ErrNoSlotForDay  = fmt.Errorf("no bookable table on that day")
	ErrNoSlotForTime = fmt.Errorf("no bookable table late enough on that day")
	ErrBookingFailed = fmt.Errorf("booking was not accepted, book manually instead")
)

// field names used by the restaurant's forms
const (
	slotField = "group1"
	csrfField = "csrf_token"
)

type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SessionState carries the cookie, csrf token and landing url of one
// authenticated server-side session. It is a value: methods return an
// updated copy instead of mutating, so a state can only ever belong to
// the single booking attempt that is threading it through.
type SessionState struct {
	Cookie     string
	CsrfToken  string
	BookingUrl string
}

type Client struct {
	baseUrl *url.URL
	http    *resty.Client
}

func NewClient(baseUrl string) (*Client, error) {
	if !strings.HasSuffix(baseUrl, "/") {
		baseUrl += "/"
	}
	base, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetTimeout(time.Second * 30)
	// the login and booking responses are redirects that carry the
	// session handoff, so redirect following stays off entirely
	client.GetClient().CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	telemetry.InstrumentResty(client, "scrapers/restaurant/http")

	return &Client{
		baseUrl: base,
		http:    client,
	}, nil
}

// Login posts the credential form and captures the session cookie and
// landing url from the redirect response. Any non-redirect answer, or
// a redirect missing either header, fails the session for good.
func (c *Client) Login(ctx context.Context, creds Credentials) (SessionState, error) {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"username": creds.Username,
			"password": creds.Password,
			"submit":   "login",
		}).
		Post(c.baseUrl.String() + "login")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login request failed")
		return SessionState{}, err
	}

	if res.StatusCode() < 300 || res.StatusCode() > 399 {
		span.SetStatus(codes.Error, "login did not redirect")
		return SessionState{}, fmt.Errorf("%w: status %d", ErrLoginFailed, res.StatusCode())
	}

	cookie := res.Header().Get("Set-Cookie")
	location := res.Header().Get("Location")
	if cookie == "" || location == "" {
		span.SetStatus(codes.Error, "login redirect missing handoff headers")
		return SessionState{}, fmt.Errorf("%w: redirect missing cookie or location", ErrLoginFailed)
	}

	target, err := url.Parse(location)
	if err != nil {
		return SessionState{}, fmt.Errorf("%w: unparseable location %q", ErrLoginFailed, location)
	}

	state := SessionState{
		// only the name=value pair goes back out on requests
		Cookie:     strings.TrimSpace(strings.SplitN(cookie, ";", 2)[0]),
		BookingUrl: c.baseUrl.ResolveReference(target).String(),
	}
	slog.DebugContext(ctx, "restaurant session established", "booking_url", state.BookingUrl)
	return state, nil
}

// DiscoverSlots fetches the authenticated booking page, captures its
// hidden csrf token into the returned state and decodes every slot
// input. Slots are filtered to the wanted day first and the minimum
// hour second, so the two empty outcomes stay distinguishable:
// ErrNoSlotForDay when the day never appears, ErrNoSlotForTime when it
// does but every slot is too early.
func (c *Client) DiscoverSlots(ctx context.Context, state SessionState, day string, minHour int) (SessionState, []Window, error) {
	ctx, span := tracer.Start(ctx, "client:DiscoverSlots")
	defer span.End()
	span.SetAttributes(
		attribute.String("day", day),
		attribute.Int("min_hour", minHour),
	)

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cookie", state.Cookie).
		Get(state.BookingUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch booking page")
		return state, nil, err
	}
	if res.IsError() {
		span.SetStatus(codes.Error, "unexpected status")
		return state, nil, fmt.Errorf("fetch %s: unexpected status %d", state.BookingUrl, res.StatusCode())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse booking page")
		return state, nil, err
	}

	state.CsrfToken = doc.Find(fmt.Sprintf("input[name=%s]", csrfField)).AttrOr("value", "")

	wantDay := textutil.DayPrefix(day)
	dayMatches := 0
	var windows []Window

	doc.Find(fmt.Sprintf("input[name=%s]", slotField)).Each(func(i int, input *goquery.Selection) {
		code := BookingCode(input.AttrOr("value", ""))
		prefix, hour, err := code.Decode()
		if err != nil {
			slog.WarnContext(ctx, "skipping malformed slot code", "code", code, "err", err)
			return
		}
		if prefix != wantDay {
			return
		}
		dayMatches++
		if hour < minHour {
			return
		}
		windows = append(windows, Window{StartHour: hour})
	})

	if dayMatches == 0 {
		return state, nil, fmt.Errorf("%w: %s", ErrNoSlotForDay, day)
	}
	if len(windows) == 0 {
		return state, nil, fmt.Errorf("%w: %s after %02d:00", ErrNoSlotForTime, day, minHour)
	}

	slices.SortFunc(windows, func(a, b Window) int {
		return a.StartHour - b.StartHour
	})
	return state, windows, nil
}

// Book submits the csrf-protected reservation form for one slot. A
// failed submission is reported and never resubmitted: a second silent
// attempt against a live booking system risks a duplicate reservation.
func (c *Client) Book(ctx context.Context, state SessionState, day string, window Window) error {
	ctx, span := tracer.Start(ctx, "client:Book")
	defer span.End()

	if state.CsrfToken == "" {
		return fmt.Errorf("session has no csrf token, discover slots before booking")
	}

	code, err := EncodeBookingCode(day, window.StartHour)
	if err != nil {
		return err
	}

	res, err := c.http.R().
		SetContext(ctx).
		SetHeader("Cookie", state.Cookie).
		SetFormData(map[string]string{
			csrfField: state.CsrfToken,
			slotField: string(code),
		}).
		Post(state.BookingUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "booking request failed")
		return err
	}

	if res.StatusCode() != http.StatusOK {
		span.SetStatus(codes.Error, "booking rejected")
		return fmt.Errorf("%w: status %d", ErrBookingFailed, res.StatusCode())
	}

	slog.InfoContext(ctx, "table booked", "day", day, "window", window.String())
	return nil
}
