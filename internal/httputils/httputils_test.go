package httputils

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeAPIRequestRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": body["q"]})
	}))
	defer server.Close()

	client := NewRetryableHttpClient(5*time.Second, NewLimiter(0), nil)

	var out struct {
		Echo string `json:"echo"`
	}
	err := MakeAPIRequest(context.Background(), client, http.MethodPost, server.URL, map[string]string{"q": "hello"},
		map[string]string{"X-Key": "secret"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Echo)
}

func TestMakeAPIRequestReportsStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	client := NewRetryableHttpClient(5*time.Second, nil, nil)
	err := MakeAPIRequest(context.Background(), client, http.MethodGet, server.URL, nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusNotFound))
	assert.False(t, IsStatus(err, http.StatusInternalServerError))
}

func TestRetryableClientRetriesServerErrors(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewRetryableHttpClient(5*time.Second, NewLimiter(100), nil)
	require.NoError(t, MakeAPIRequest(context.Background(), client, http.MethodGet, server.URL, nil, nil, &struct{}{}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestURLWithQuery(t *testing.T) {
	got, err := URLWithQuery("https://example.com/api?existing=1", url.Values{"primaryKey": {"id"}})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/api?existing=1&primaryKey=id", got)

	_, err = URLWithQuery("://bad", nil)
	assert.Error(t, err)
}
