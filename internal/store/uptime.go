package store

import (
	"context"
	"fmt"
)

// InsertUptime appends one probe result. Uptime rows are never updated.
func (s *Store) InsertUptime(ctx context.Context, rec UptimeRecord) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO uptime_records (received, url, http_status, available)
		VALUES (?, ?, ?, ?)
	`), rec.Received.UTC(), rec.URL, rec.HTTPStatus, rec.Available)
	if err != nil {
		return fmt.Errorf("insert uptime record %s: %w", rec.URL, err)
	}
	return nil
}

// RecentUptime returns the limit most recent records for url, newest first.
func (s *Store) RecentUptime(ctx context.Context, url string, limit int) ([]UptimeRecord, error) {
	recs := []UptimeRecord{}
	if limit <= 0 {
		return recs, nil
	}
	err := s.db.SelectContext(ctx, &recs, s.db.Rebind(`
		SELECT * FROM uptime_records WHERE url = ?
		ORDER BY received DESC LIMIT ?
	`), url, limit)
	if err != nil {
		return nil, fmt.Errorf("recent uptime %s: %w", url, err)
	}
	return recs, nil
}
