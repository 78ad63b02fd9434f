package vt

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, breaker CircuitBreakerConfig) *Client {
	return NewClient(ClientConfig{
		URL:            url,
		APIKey:         "test-key",
		RequestTimeout: 2 * time.Second,
		CircuitBreaker: breaker,
		Logger:         zerolog.Nop(),
	})
}

func TestClient_FetchReports_Query(t *testing.T) {
	var gotKey, gotResource, gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotKey = r.URL.Query().Get("apikey")
		gotResource = r.URL.Query().Get("resource")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"response_code":1,"resource":"a"},{"response_code":0,"resource":"b"}]`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, CircuitBreakerConfig{})
	reports, err := c.FetchReports(context.Background(), []string{"a", "b"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, gotMethod)
	assert.Equal(t, "test-key", gotKey)
	assert.Equal(t, "a,b", gotResource)
	require.Len(t, reports, 2)
	assert.Equal(t, []string{"a"}, reports[0].Keys())
	assert.True(t, reports[1].IsNotFound())
}

func TestClient_FetchReports_SingleObjectNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response_code":1,"resource":"only","positives":3}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, CircuitBreakerConfig{})
	reports, err := c.FetchReports(context.Background(), []string{"only"})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 3, reports[0].Positives)
}

func TestClient_FetchReports_Failures(t *testing.T) {
	cases := map[string]struct {
		status int
		body   string
		want   error
	}{
		"bad status": {status: http.StatusForbidden, body: `{}`, want: ErrStatus},
		"rate limit": {status: http.StatusNoContent, body: ``, want: ErrStatus},
		"empty body": {status: http.StatusOK, body: ``, want: ErrEmptyBody},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			c := newTestClient(srv.URL, CircuitBreakerConfig{})
			_, err := c.FetchReports(context.Background(), []string{"k"})
			assert.True(t, errors.Is(err, tc.want), "err = %v", err)
		})
	}
}

func TestClient_FetchReports_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := newTestClient(url, CircuitBreakerConfig{})
	_, err := c.FetchReports(context.Background(), []string{"k"})
	assert.Error(t, err)
}

func TestClient_FetchReports_NoKeys(t *testing.T) {
	c := newTestClient("http://127.0.0.1:1", CircuitBreakerConfig{})
	reports, err := c.FetchReports(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, reports)
}

func TestClient_BreakerOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 2,
		RecoveryTimeout:  time.Hour,
	})

	for i := 0; i < 2; i++ {
		_, err := c.FetchReports(context.Background(), []string{"k"})
		assert.True(t, errors.Is(err, ErrStatus))
	}

	_, err := c.FetchReports(context.Background(), []string{"k"})
	assert.True(t, errors.Is(err, ErrBreakerOpen))
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "open", c.BreakerState())
}

func TestClient_RateGuardHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"response_code":0,"resource":"k"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{
		URL:            srv.URL,
		APIKey:         "k",
		RequestTimeout: time.Second,
		MinInterval:    time.Hour,
		Logger:         zerolog.Nop(),
	})

	_, err := c.FetchReports(context.Background(), []string{"k"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.FetchReports(ctx, []string{"k"})
	assert.Error(t, err)
}
