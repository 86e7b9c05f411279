package probe

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calebsyring/critic/internal/models"
)

func testMonitor(url string) models.Monitor {
	return models.Monitor{
		ProjectID: "7f9c24e8-3b12-4b8f-9f60-1c2d4a5b6c7d",
		Slug:      "web",
		URL:       url,
		Timeout:   2 * time.Second,
	}
}

func TestProbeUsesHeadWithoutBodyAssertion(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
	}))
	defer server.Close()

	p := NewHTTPProber(nil)
	out, err := p.Probe(context.Background(), testMonitor(server.URL))
	require.NoError(t, err)

	assert.Equal(t, http.MethodHead, method)
	assert.True(t, out.Responded)
	assert.Equal(t, http.StatusOK, out.StatusCode)
	assert.True(t, out.AssertionPassed)
	assert.GreaterOrEqual(t, out.Latency, time.Duration(0))
}

func TestProbeAnyResponsePassesWithoutAssertions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	p := NewHTTPProber(nil)
	out, err := p.Probe(context.Background(), testMonitor(server.URL))
	require.NoError(t, err)

	assert.True(t, out.Responded)
	assert.Equal(t, http.StatusInternalServerError, out.StatusCode)
	assert.True(t, out.AssertionPassed)
}

func TestProbeStatusAssertion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	p := NewHTTPProber(nil)

	m := testMonitor(server.URL)
	m.Assertions.StatusCode = http.StatusAccepted
	out, err := p.Probe(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, out.AssertionPassed)

	m.Assertions.StatusCode = http.StatusOK
	out, err = p.Probe(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, out.Responded)
	assert.False(t, out.AssertionPassed)
}

func TestProbeBodyAssertionForcesGet(t *testing.T) {
	var method string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer server.Close()

	p := NewHTTPProber(nil)

	m := testMonitor(server.URL)
	m.Assertions.BodyContains = "healthy"
	out, err := p.Probe(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, method)
	assert.True(t, out.AssertionPassed)

	// Substring match is case-sensitive.
	m.Assertions.BodyContains = "Healthy"
	out, err = p.Probe(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, out.Responded)
	assert.False(t, out.AssertionPassed)
}

func TestProbeBodyAssertionReadIsBounded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write(bytes.Repeat([]byte("x"), maxAssertionBody))
		w.Write([]byte("needle"))
	}))
	defer server.Close()

	p := NewHTTPProber(nil)
	m := testMonitor(server.URL)

	// Content past the read cap never matches.
	m.Assertions.BodyContains = "needle"
	out, err := p.Probe(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, out.Responded)
	assert.False(t, out.AssertionPassed)

	// Content within the cap still does.
	m.Assertions.BodyContains = "xxx"
	out, err = p.Probe(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, out.AssertionPassed)
}

func TestProbeCombinedAssertionsMustBothPass(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("all good"))
	}))
	defer server.Close()

	p := NewHTTPProber(nil)

	m := testMonitor(server.URL)
	m.Assertions.StatusCode = http.StatusOK
	m.Assertions.BodyContains = "all good"
	out, err := p.Probe(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, out.AssertionPassed)

	m.Assertions.StatusCode = http.StatusNoContent
	out, err = p.Probe(context.Background(), m)
	require.NoError(t, err)
	assert.False(t, out.AssertionPassed)
}

func TestProbeTimeoutIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer server.Close()

	p := NewHTTPProber(nil)
	m := testMonitor(server.URL)
	m.Timeout = 50 * time.Millisecond

	out, err := p.Probe(context.Background(), m)
	require.NoError(t, err)

	assert.False(t, out.Responded)
	assert.Equal(t, 0, out.StatusCode)
	assert.False(t, out.AssertionPassed)
}

func TestProbeConnectionRefusedIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	p := NewHTTPProber(nil)
	out, err := p.Probe(context.Background(), testMonitor(url))
	require.NoError(t, err)

	assert.False(t, out.Responded)
	assert.False(t, out.AssertionPassed)
}
