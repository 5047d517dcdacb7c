package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AngelCh415/lead-funnel/internal/utils"
)

var fastBackoff = utils.NewBackoff(time.Millisecond, 3)

func TestGetJSONHandles500(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	var out []any
	err := getJSON(context.Background(), NewHTTPClient(2*time.Second), srv.URL, &out)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Contains(t, se.Body, "internal error")
}

func TestGetJSONHandles404(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	var out []any
	err := getJSON(context.Background(), NewHTTPClient(2*time.Second), srv.URL, &out)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
}

func TestGetJSONHandlesTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	var out []any
	err := getJSON(context.Background(), NewHTTPClient(200*time.Millisecond), srv.URL, &out)
	assert.Error(t, err)
}

func TestGetJSONEmptyURL(t *testing.T) {
	var out []any
	assert.Error(t, getJSON(context.Background(), NewHTTPClient(time.Second), "", &out))
}

func TestGetJSONWithRetryRecovers(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"clickId":"k1"}]`))
	}))
	defer srv.Close()

	var out []clickInput
	err := GetJSONWithRetry(context.Background(), NewHTTPClient(time.Second), fastBackoff, srv.URL, &out)
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.Len(t, out, 1)
	assert.Equal(t, "k1", out[0].ClickID)
}

func TestGetJSONWithRetryStopsOnClientError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad", http.StatusBadRequest)
	}))
	defer srv.Close()

	var out []any
	err := GetJSONWithRetry(context.Background(), NewHTTPClient(time.Second), fastBackoff, srv.URL, &out)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.Code)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestGetJSONWithRetryGivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	var out []any
	err := GetJSONWithRetry(context.Background(), NewHTTPClient(time.Second), fastBackoff, srv.URL, &out)
	assert.Error(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}
