package preflight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_FormatOnly(t *testing.T) {
	c := NewChecker(nil)
	res := c.Check(context.Background(), []string{
		" https://travel.state.gov/pets ",
		"not-a-url",
		"ftp://example.com/file",
		"//missing-scheme.com",
	}, false)

	assert.Equal(t, []string{"https://travel.state.gov/pets"}, res.Cleaned)
	assert.ElementsMatch(t, []string{"not-a-url", "ftp://example.com/file", "//missing-scheme.com"}, res.InvalidFormat)
	assert.False(t, res.OK())
}

func TestCheck_InvalidFormatSkipsProbes(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client())
	res := c.Check(context.Background(), []string{srv.URL, "not-a-url"}, true)

	assert.False(t, res.OK())
	assert.Equal(t, []string{"not-a-url"}, res.InvalidFormat)
	assert.Empty(t, res.Unreachable, "probes should not run when format checks fail")
	assert.Zero(t, hits.Load())
}

func TestCheck_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client())
	res := c.Check(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"}, true)

	require.True(t, res.OK())
	assert.Len(t, res.Cleaned, 2)
}

func TestCheck_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client())
	res := c.Check(context.Background(), []string{srv.URL}, true)

	assert.False(t, res.OK())
	assert.Equal(t, []string{srv.URL}, res.Unreachable)
}

func TestCheck_HeadFallsBackToGet(t *testing.T) {
	var sawGet atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusMethodNotAllowed)
		case http.MethodGet:
			sawGet.Store(true)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	c := NewChecker(srv.Client())
	res := c.Check(context.Background(), []string{srv.URL}, true)

	assert.True(t, res.OK())
	assert.True(t, sawGet.Load())
}

func TestCheck_RedirectStatusCountsAsReachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewChecker(srv.Client())
	res := c.Check(context.Background(), []string{srv.URL}, true)
	assert.True(t, res.OK())
}
