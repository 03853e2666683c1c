package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://API.github.com/repositories", "api.github.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestObservers(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(harvesterIterationsTotal.WithLabelValues("cloned"))
	ObserveIteration("cloned")
	assert.Equal(t, before+1, testutil.ToFloat64(harvesterIterationsTotal.WithLabelValues("cloned")))

	SetCursor(3042)
	assert.Equal(t, float64(3042), testutil.ToFloat64(harvesterCursor))

	listing := harvesterListingRequestsTotal.WithLabelValues("api.github.com", "200")
	beforeListing := testutil.ToFloat64(listing)
	ObserveListing("https://api.github.com/repositories?since=1", 200, 512)
	assert.Equal(t, beforeListing+1, testutil.ToFloat64(listing))

	beforeRestarts := testutil.ToFloat64(harvesterSupervisorRestarts)
	IncSupervisorRestarts()
	assert.Equal(t, beforeRestarts+1, testutil.ToFloat64(harvesterSupervisorRestarts))

	beforeMaxWait := testutil.ToFloat64(harvesterMaxWaitExceededTotal)
	ObserveMaxWaitExceeded()
	assert.Equal(t, beforeMaxWait+1, testutil.ToFloat64(harvesterMaxWaitExceededTotal))

	ObserveClone(90 * time.Second)
	ObserveRateLimitSleep(30 * time.Minute)
}

func TestRouter(t *testing.T) {
	router := NewRouter(func() any { return map[string]int64{"cursor": 42} })

	tests := []struct {
		path     string
		wantCode int
		contains string
	}{
		{path: "/healthz", wantCode: http.StatusOK, contains: "ok"},
		{path: "/status", wantCode: http.StatusOK, contains: `"cursor":42`},
		{path: "/metrics", wantCode: http.StatusOK, contains: "go_goroutines"},
		{path: "/missing", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.wantCode, rec.Code, tt.path)
		if tt.contains != "" {
			assert.True(t, strings.Contains(rec.Body.String(), tt.contains), "%s body %q", tt.path, rec.Body.String())
		}
	}
}

func TestRouterWithoutStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	NewRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, "127.0.0.1:0", NewRouter(nil), zap.NewNop())
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
