package uptime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MatthiasZepper/nfcore-stats-backend/internal/metrics"
	"github.com/MatthiasZepper/nfcore-stats-backend/internal/store"
)

type memRecorder struct {
	mu      sync.Mutex
	rows    []store.UptimeRecord
	failing error
}

func (m *memRecorder) InsertUptime(_ context.Context, rec store.UptimeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return m.failing
	}
	m.rows = append(m.rows, rec)
	return nil
}

func (m *memRecorder) RecentUptime(_ context.Context, url string, limit int) ([]store.UptimeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.UptimeRecord
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].URL == url {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func TestAvailable(t *testing.T) {
	require.True(t, Available(200))
	require.True(t, Available(301))
	require.True(t, Available(399))
	require.False(t, Available(199))
	require.False(t, Available(400))
	require.False(t, Available(503))
	require.False(t, Available(StatusFailed))
}

func TestRunRecordsStatus(t *testing.T) {
	var method string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rec := &memRecorder{}
	p := New(srv.URL, time.Second, rec, zaptest.NewLogger(t), metrics.New())

	got, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, http.MethodHead, method)
	require.Equal(t, 200, got.HTTPStatus)
	require.True(t, got.Available)
	require.Len(t, rec.rows, 1)
	require.Equal(t, got, rec.rows[0])
}

func TestRunRecordsServerErrorAsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rec := &memRecorder{}
	got, err := New(srv.URL, time.Second, rec, zaptest.NewLogger(t), nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 503, got.HTTPStatus)
	require.False(t, got.Available)
}

func TestRunDoesNotFollowRedirects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/elsewhere", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	got, err := New(srv.URL, time.Second, &memRecorder{}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 301, got.HTTPStatus)
	require.True(t, got.Available)
}

func TestRunPersistsFailureAndReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := &memRecorder{}
	got, err := New(url, time.Second, rec, zaptest.NewLogger(t), nil).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusFailed, got.HTTPStatus)
	require.False(t, got.Available)
	require.Len(t, rec.rows, 1)
	require.Equal(t, StatusFailed, rec.rows[0].HTTPStatus)
}

func TestRunTimesOut(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	rec := &memRecorder{}
	got, err := New(srv.URL, 50*time.Millisecond, rec, zaptest.NewLogger(t), nil).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusFailed, got.HTTPStatus)
	require.Len(t, rec.rows, 1)
}

func TestRunJoinsStorageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	boom := errors.New("disk full")
	_, err := New(srv.URL, time.Second, &memRecorder{failing: boom}, zaptest.NewLogger(t), nil).Run(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRunPersistsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &memRecorder{}
	_, err := New("http://127.0.0.1:1", time.Second, rec, zaptest.NewLogger(t), nil).Run(ctx)
	require.Error(t, err)
	require.Len(t, rec.rows, 1)
}

func TestRecentAgainstStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	s, err := store.Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "uptime.db"), 2)
	require.NoError(t, err)
	defer s.Close()

	p := New(srv.URL, time.Second, s, zaptest.NewLogger(t), nil)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	p.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	_, err = p.Run(context.Background())
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	grouped, err := p.Recent(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, grouped, 1)
	rows := grouped[srv.URL]
	require.Len(t, rows, 2)
	require.True(t, rows[0].Received.After(rows[1].Received))
	require.Equal(t, base.Add(2*time.Minute), rows[0].Received.UTC())

	empty, err := p.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Empty(t, empty)
}
