package nfcore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
)

const maxSnapshotBytes = 256 << 20

// ErrSnapshotTooLarge is returned when a snapshot exceeds the size limit.
var ErrSnapshotTooLarge = errors.New("snapshot too large")

// Fetcher downloads published pipelines.json snapshots.
type Fetcher struct {
	client   *http.Client
	url      string
	maxBytes int64
}

// NewFetcher creates a fetcher for the snapshot at url.
func NewFetcher(url string) *Fetcher {
	return &Fetcher{
		client:   &http.Client{Timeout: 60 * time.Second},
		url:      url,
		maxBytes: maxSnapshotBytes,
	}
}

// URL returns the snapshot location.
func (f *Fetcher) URL() string { return f.url }

// Fetch downloads and decodes the snapshot.
func (f *Fetcher) Fetch(ctx context.Context) (Payload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create snapshot request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", "nfstats/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", f.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot %s: status %d", f.url, resp.StatusCode)
	}

	body, err := DecodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("snapshot %s: %w (limit %d bytes)", f.url, ErrSnapshotTooLarge, f.maxBytes)
	}
	p, err := DecodePayload(data)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return p, nil
}

// DecodeBody wraps r in a gzip reader when encoding says so.
func DecodeBody(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch encoding {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		return zr, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
