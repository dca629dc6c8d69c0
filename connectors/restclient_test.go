package connectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/trackport/trackport/model"
)

func TestRESTClientClassification(t *testing.T) {
	testCases := []struct {
		name       string
		status     int
		headers    map[string]string
		wantKind   model.ErrorKind
		wantRetry  bool
		wantJobEnd bool
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: model.ErrAuth, wantJobEnd: true},
		{name: "forbidden", status: http.StatusForbidden, wantKind: model.ErrAuth, wantJobEnd: true},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			headers:   map[string]string{"Retry-After": "120"},
			wantKind:  model.ErrRateLimited,
			wantRetry: true,
		},
		{name: "not found", status: http.StatusNotFound, wantKind: model.ErrFetch, wantRetry: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
			}))
			defer srv.Close()

			client := NewRESTClient(config.New(), logger.NOP, srv.URL, nil)
			_, err := client.GetJSON(context.Background(), "/whatever", nil, nil)
			require.Error(t, err)

			ie := model.AsImportError(err)
			require.Equal(t, tc.wantKind, ie.Kind)
			require.Equal(t, tc.wantRetry, ie.Retryable())
			require.Equal(t, tc.wantJobEnd, ie.JobLevel)
		})
	}
}

func TestRESTClientRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "42")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewRESTClient(config.New(), logger.NOP, srv.URL, nil)
	_, err := client.GetJSON(context.Background(), "/", nil, nil)

	ie := model.AsImportError(err)
	require.Equal(t, model.ErrRateLimited, ie.Kind)
	require.Equal(t, 42*time.Second, ie.RetryAfter)
}

func TestRESTClientAuthAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		require.Equal(t, "7", r.URL.Query().Get("page"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"name":"widget"}`))
	}))
	defer srv.Close()

	client := NewRESTClient(config.New(), logger.NOP, srv.URL, BearerAuth("tok-123"))

	var out struct {
		Name string `json:"name"`
	}
	_, err := client.GetJSON(context.Background(), "/thing", url.Values{"page": {"7"}}, &out)
	require.NoError(t, err)
	require.Equal(t, "widget", out.Name)
}

func TestRESTClientRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	conf := config.New()
	conf.Set("Connector.httpRetryWaitMin", "1ms")
	conf.Set("Connector.httpRetryWaitMax", "5ms")

	client := NewRESTClient(conf, logger.NOP, srv.URL, nil)
	var out map[string]any
	_, err := client.GetJSON(context.Background(), "/", nil, &out)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}
