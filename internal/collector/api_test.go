package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"route-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAPI(t *testing.T, baseURL, extra string) Collector {
	t.Helper()
	js := `{"name": "tms", "type": "api", "base_url": "` + baseURL + `", "api_key": "secret",
		"endpoints": {
			"health": {"url": "/health"},
			"routes": {"url": "/routes", "data_path": "data.items",
				"date_filter": {"enabled": true, "days_back": 2, "param_name": "since", "format": "%Y-%m-%d"}}
		}` + extra + `}`
	fixed := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c, err := New(configFromJSON(t, js), Options{Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	return c
}

func TestAPIFetchExtractsDataPath(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/routes":
			assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
			assert.Equal(t, "2024-03-08", r.URL.Query().Get("since"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"data": {"items": [{"trip_id": "T1", "date": "2024-03-09"}, {"trip_id": "T2", "date": "2024-03-09"}]}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newAPI(t, srv.URL, "")
	require.NoError(t, c.TestConnection(context.Background()))

	res, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "T1", res.Records[0].Fields["trip_id"])
	assert.Equal(t, "routes", res.Records[0].Origin)
	assert.Equal(t, []string{"routes"}, res.Origins)
}

func TestAPIStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		body      string
		want      error
		retryable bool
	}{
		{http.StatusTooManyRequests, "", model.ErrRateLimited, true},
		{http.StatusServiceUnavailable, "", model.ErrSourceUnavailable, true},
		{http.StatusUnauthorized, "", model.ErrAuth, false},
		{http.StatusForbidden, "", model.ErrAuth, false},
		{http.StatusBadRequest, "bad", model.ErrMalformedInput, false},
		{http.StatusOK, "not json", model.ErrMalformedInput, false},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newAPI(t, srv.URL, "").Fetch(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.retryable, model.IsRetryable(err))
		})
	}
}

func TestAPIFailedEndpointDoesNotLoseOthers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/routes" {
			w.Write([]byte(`{"data": {"items": [{"trip_id": "T1", "date": "2024-03-09"}]}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, err := New(configFromJSON(t, `{"name": "tms", "type": "api", "base_url": "`+srv.URL+`",
		"endpoints": {
			"a_gone": {"url": "/gone"},
			"routes": {"url": "/routes", "data_path": "data.items"}
		}}`), Options{})
	require.NoError(t, err)

	res, err := c.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "routes", res.Records[0].Origin)
	assert.Equal(t, []string{"routes"}, res.Origins)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, model.KindMalformedInput, res.Warnings[0].Kind)
	assert.Equal(t, "a_gone", res.Warnings[0].Origin)
}

func TestAPIRetryableEndpointFailsWholeFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/routes" {
			w.Write([]byte(`{"data": {"items": [{"trip_id": "T1"}]}}`))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(configFromJSON(t, `{"name": "tms", "type": "api", "base_url": "`+srv.URL+`",
		"endpoints": {
			"busy": {"url": "/busy"},
			"routes": {"url": "/routes", "data_path": "data.items"}
		}}`), Options{})
	require.NoError(t, err)

	_, err = c.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsRetryable(err))
}

func TestAPIMissingDataPathIsWarning(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"other": []}`))
	}))
	defer srv.Close()

	res, err := newAPI(t, srv.URL, "").Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	require.Len(t, res.Warnings, 1)
}

func TestAPIRateLimitDelayBetweenRequests(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"data": {"items": []}}`))
	}))
	defer srv.Close()

	c := newAPI(t, srv.URL, `, "rate_limit_delay": 0.1`)
	start := time.Now()
	_, err := c.Fetch(context.Background())
	require.NoError(t, err)
	_, err = c.Fetch(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestAPIUnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newAPI(t, url, "").Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, model.IsRetryable(err))
}
