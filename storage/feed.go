package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	// DefaultWatchInterval is used by Watch when no positive interval is given.
	DefaultWatchInterval = 500 * time.Millisecond

	// feedRetention bounds the change feed; watchers that fall further
	// behind simply miss the oldest keys and must re-read anyway.
	feedRetention = 1000
)

type change struct {
	Seq    int64  `db:"seq"`
	Key    string `db:"key"`
	Origin string `db:"origin"`
}

func recordChanges(tx *sqlx.Tx, origin string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	for _, key := range keys {
		if _, err := tx.Exec(`INSERT INTO changes(key, origin) VALUES(?, ?)`, key, origin); err != nil {
			return fmt.Errorf("record change %q: %w", key, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM changes WHERE seq <= (SELECT MAX(seq) FROM changes) - ?`, feedRetention); err != nil {
		return fmt.Errorf("prune change feed: %w", err)
	}
	return nil
}

// Poll delivers changes committed by other Store instances (usually other
// processes) since the previous poll. Changes made through this Store were
// already delivered when they committed and are skipped. It returns the
// number of keys delivered.
func (s *Store) Poll() (int, error) {
	s.pollMu.Lock()
	defer s.pollMu.Unlock()

	var rows []change
	if err := s.db.Select(&rows, `SELECT seq, key, origin FROM changes WHERE seq > ? ORDER BY seq`, s.lastSeq); err != nil {
		return 0, fmt.Errorf("poll changes: %w", err)
	}
	delivered := 0
	for _, c := range rows {
		s.lastSeq = c.Seq
		if c.Origin == s.origin {
			continue
		}
		s.notify(sourceRemote, c.Key)
		delivered++
	}
	return delivered, nil
}

// Watch polls the change feed every interval until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultWatchInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Poll(); err != nil {
				s.log.Warn().Err(err).Msg("change feed poll failed")
			}
		}
	}
}
