package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbeFailureBody(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	n := ProbeFailure("https://nf-co.re", -1, errors.New("dial tcp: timeout"), at)
	require.Equal(t, "https://nf-co.re did not respond", n.Body)
	require.Equal(t, "dial tcp: timeout", n.Error)
	require.Equal(t, at, n.Time)

	n = ProbeFailure("https://nf-co.re", 502, nil, at)
	require.Equal(t, "https://nf-co.re answered with HTTP 502", n.Body)
	require.Empty(t, n.Error)
}

func TestWebhookSignsBody(t *testing.T) {
	var (
		body []byte
		sig  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		sig = r.Header.Get(SignatureHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := ProbeFailure("https://nf-co.re", -1, errors.New("refused"), time.Now())
	require.NoError(t, NewWebhook(srv.URL, "s3cret").Send(context.Background(), n))

	require.True(t, Verify("s3cret", body, sig))
	require.False(t, Verify("other", body, sig))

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	require.Equal(t, "probe.failure", got["event"])
	require.Equal(t, "https://nf-co.re", got["url"])
	require.Equal(t, float64(-1), got["status"])
}

func TestWebhookWithoutSecretIsUnsigned(t *testing.T) {
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(SignatureHeader)
	}))
	defer srv.Close()

	require.NoError(t, NewWebhook(srv.URL, "").Send(context.Background(), &Notification{Title: "x"}))
	require.Empty(t, sig)
}

func TestSlackPostsBlocks(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer srv.Close()

	n := ProbeFailure("https://nf-co.re", 503, nil, time.Now())
	require.NoError(t, NewSlack(srv.URL).Send(context.Background(), n))
	require.Equal(t, n.Body, payload["text"])
	require.Len(t, payload["blocks"], 2)
}

func TestBroadcastJoinsErrors(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	var hits int
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
	}))
	defer good.Close()

	m := NewManager([]Notifier{NewSlack(bad.URL), NewWebhook(good.URL, "")})
	require.True(t, m.HasNotifiers())

	err := m.Broadcast(context.Background(), ProbeFailure("https://nf-co.re", -1, nil, time.Now()))
	require.ErrorContains(t, err, "slack")
	require.Equal(t, 1, hits)
}

func TestNilManagerIsQuiet(t *testing.T) {
	var m *Manager
	require.False(t, m.HasNotifiers())
	require.NoError(t, m.Broadcast(context.Background(), &Notification{}))
}
