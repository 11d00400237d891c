package links

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"nightout/lib/telemetry"

	"github.com/stretchr/testify/require"
)

func TestDiscover(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/links")()

	mux := http.NewServeMux()
	mux.HandleFunc("/start/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="./calendar/">Calendar</a>
			<a href="./cinema/">Cinema</a>
			<a href="http://example.com/zeke">Zeke</a>
			<a href="http://example.com/zeke">Zeke again</a>
			<a href="mailto:zeke@example.com">Mail</a>
			<a>no href</a>
		</body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	got, err := NewClient().Discover(context.Background(), srv.URL+"/start/")
	require.NoError(t, err)

	// sorted: the httptest host (127.0.0.1) orders before example.com
	require.Equal(t, []string{
		srv.URL + "/start/calendar/",
		srv.URL + "/start/cinema/",
		"http://example.com/zeke",
	}, got)
}

func TestDiscoverFetchError(t *testing.T) {
	defer telemetry.SetupForTesting("test:scrapers/links")()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	_, err := NewClient().Discover(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}
