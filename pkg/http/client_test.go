package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetJSONResolvesPathAndQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/mission-control/trades", r.URL.Path)
		require.Equal(t, "20", r.URL.Query().Get("limit"))
		require.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`{"count":2}`))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL + "/"))
	var out struct {
		Count int `json:"count"`
	}
	err := c.GetJSON(context.Background(), "/api/mission-control/trades", url.Values{"limit": {"20"}}, &out)
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
}

func TestPostJSONEncodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		var in map[string]bool
		require.NoError(t, json.Unmarshal(b, &in))
		require.True(t, in["confirmed"])
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	require.NoError(t, c.PostJSON(context.Background(), "emergency-stop", map[string]bool{"confirmed": true}, nil))
}

func TestNon2xxIsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL))
	err := c.GetJSON(context.Background(), "/api/data", nil, &struct{}{})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusBadGateway, se.StatusCode)
	require.Equal(t, "backend down", se.Body)
}

func TestRawBodyDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var raw []byte
	require.NoError(t, NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &raw))
	require.Equal(t, "not json", string(raw))

	err := NewClient().SendAndParse(context.Background(), &RequestOptions{Method: MethodGet, URL: srv.URL}, &struct{}{})
	require.ErrorContains(t, err, "decode json")
}
