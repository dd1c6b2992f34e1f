package plannerrepo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPlan(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "test-model", req.Model)
		require.Len(t, req.Messages, 2)
		require.Equal(t, "3 days in Lisbon", req.Messages[1].Content)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  Day 1: Alfama  "}}]}`))
	}))
	defer srv.Close()

	out, err := New("key", srv.URL+"/v1", "test-model", srv.Client()).Plan(context.Background(), "3 days in Lisbon")
	require.NoError(t, err)
	require.Equal(t, "Day 1: Alfama", out)
}

func TestPlan_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	r := New("key", srv.URL, "", srv.Client()).(*chatRepo)
	r.delay = time.Millisecond
	out, err := r.Plan(context.Background(), "trip")
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, int32(3), calls.Load())
}

func TestPlan_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := New("key", srv.URL, "", srv.Client()).Plan(context.Background(), "trip")
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	_, err = New("", srv.URL, "", nil).Plan(context.Background(), "trip")
	require.ErrorIs(t, err, ErrNotConfigured)
}
