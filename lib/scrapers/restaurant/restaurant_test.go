package restaurant

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"nightout/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const (
	testCookie = "session=abc123"
	testCsrf   = "token9000"
)

type fakeRestaurant struct {
	slots      []string
	bookStatus int
	bookCalls  int
	lastBooked string
}

func (f *fakeRestaurant) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.FormValue("username") != "zeke" || r.FormValue("password") != "coys" {
			w.Write([]byte("<html><body>wrong credentials</body></html>"))
			return
		}
		w.Header().Set("Set-Cookie", testCookie+"; Path=/; HttpOnly")
		w.Header().Set("Location", "login/booking")
		w.WriteHeader(http.StatusFound)
	})

	mux.HandleFunc("/login/booking", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Cookie"), testCookie) {
			w.WriteHeader(http.StatusForbidden)
			return
		}

		if r.Method == http.MethodPost {
			require.NoError(t, r.ParseForm())
			require.Equal(t, testCsrf, r.FormValue("csrf_token"))
			f.bookCalls++
			f.lastBooked = r.FormValue("group1")
			w.WriteHeader(f.bookStatus)
			return
		}

		var page strings.Builder
		page.WriteString(`<html><body><form method="post">`)
		page.WriteString(fmt.Sprintf(`<input type="hidden" name="csrf_token" value="%s"/>`, testCsrf))
		for _, slot := range f.slots {
			page.WriteString(fmt.Sprintf(`<input type="radio" name="group1" value="%s"/>`, slot))
		}
		page.WriteString(`</form></body></html>`)
		w.Write([]byte(page.String()))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupSession(t *testing.T, fake *fakeRestaurant) (*Client, SessionState) {
	srv := fake.server(t)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	state, err := client.Login(context.Background(), Credentials{Username: "zeke", Password: "coys"})
	require.NoError(t, err)
	return client, state
}

func TestLogin(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{bookStatus: http.StatusOK}
	srv := fake.server(t)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	state, err := client.Login(context.Background(), Credentials{Username: "zeke", Password: "coys"})
	require.NoError(t, err)
	require.Equal(t, testCookie, state.Cookie)
	require.Equal(t, srv.URL+"/login/booking", state.BookingUrl)
	require.Empty(t, state.CsrfToken)
}

func TestLoginWithoutRedirectFails(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{bookStatus: http.StatusOK}
	srv := fake.server(t)

	client, err := NewClient(srv.URL)
	require.NoError(t, err)

	// a 200 answer is the login page served again, not a session
	_, err = client.Login(context.Background(), Credentials{Username: "zeke", Password: "wrong"})
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestDiscoverSlots(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{
		slots:      []string{"fri2021", "fri1617", "fri1819", "sat2122"},
		bookStatus: http.StatusOK,
	}
	client, state := setupSession(t, fake)

	state, windows, err := client.DiscoverSlots(context.Background(), state, "Friday", 18)
	require.NoError(t, err)
	require.Equal(t, testCsrf, state.CsrfToken)
	require.Equal(t, []Window{{StartHour: 18}, {StartHour: 20}}, windows)
}

func TestDiscoverSlotsOutcomes(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{
		slots:      []string{"fri1617", "fri1819"},
		bookStatus: http.StatusOK,
	}
	client, state := setupSession(t, fake)

	_, _, err := client.DiscoverSlots(context.Background(), state, "Monday", 16)
	require.ErrorIs(t, err, ErrNoSlotForDay)

	_, _, err = client.DiscoverSlots(context.Background(), state, "Friday", 20)
	require.ErrorIs(t, err, ErrNoSlotForTime)
}

func TestDiscoverSlotsMonotonicInMinHour(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{
		slots:      []string{"fri1617", "fri1819", "fri2021", "fri2122"},
		bookStatus: http.StatusOK,
	}
	client, state := setupSession(t, fake)

	previous := -1
	var prevWindows []Window
	for minHour := 15; minHour <= 21; minHour++ {
		_, windows, err := client.DiscoverSlots(context.Background(), state, "Friday", minHour)
		if err != nil {
			require.ErrorIs(t, err, ErrNoSlotForTime)
			windows = nil
		}

		if previous >= 0 {
			require.LessOrEqual(t, len(windows), previous)
			for _, w := range windows {
				require.Contains(t, prevWindows, w)
			}
		}
		previous = len(windows)
		prevWindows = windows
	}
}

func TestBook(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{
		slots:      []string{"fri1819", "fri2021"},
		bookStatus: http.StatusOK,
	}
	client, state := setupSession(t, fake)

	state, windows, err := client.DiscoverSlots(context.Background(), state, "Friday", 18)
	require.NoError(t, err)

	err = client.Book(context.Background(), state, "Friday", windows[0])
	require.NoError(t, err)
	require.Equal(t, 1, fake.bookCalls)
	require.Equal(t, "fri18", fake.lastBooked)
}

func TestBookRejectedIsNotRetried(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{
		slots:      []string{"fri1819"},
		bookStatus: http.StatusInternalServerError,
	}
	client, state := setupSession(t, fake)

	state, windows, err := client.DiscoverSlots(context.Background(), state, "Friday", 18)
	require.NoError(t, err)

	err = client.Book(context.Background(), state, "Friday", windows[0])
	require.ErrorIs(t, err, ErrBookingFailed)
	require.Equal(t, 1, fake.bookCalls)
}

func TestBookWithoutCsrfToken(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/restaurant")()

	fake := &fakeRestaurant{
		slots:      []string{"fri1819"},
		bookStatus: http.StatusOK,
	}
	client, state := setupSession(t, fake)

	err := client.Book(context.Background(), state, "Friday", Window{StartHour: 18})
	require.Error(t, err)
	require.Equal(t, 0, fake.bookCalls)
}
