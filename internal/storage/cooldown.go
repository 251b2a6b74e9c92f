package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// LastServe returns a user's most recent serve, if any. The read is
// non-destructive: the caller decides whether a rollback applies.
func (s *Store) LastServe(ctx context.Context, userID int64) (LastServe, bool, error) {
	var ls LastServe
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, last_media_id, served_at FROM last_served WHERE user_id = ?`,
		userID).Scan(&ls.UserID, &ls.MediaID, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return LastServe{}, false, nil
	}
	if err != nil {
		return LastServe{}, false, err
	}
	ls.At = time.UnixMilli(ms)
	return ls, true, nil
}

// RecordServe overwrites the user's last-served row. The upsert keeps rapid
// repeat presses chaining against the immediately prior item instead of a
// stale one.
func (s *Store) RecordServe(ctx context.Context, userID, mediaID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO last_served(user_id, last_media_id, served_at) VALUES(?,?,?)
		 ON CONFLICT(user_id) DO UPDATE SET last_media_id=excluded.last_media_id, served_at=excluded.served_at`,
		userID, mediaID, at.UnixMilli())
	return err
}

// PruneLastServed drops cooldown rows older than cutoff. Maintenance only;
// a stale row only costs one read, so retention can be generous.
func (s *Store) PruneLastServed(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM last_served WHERE served_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
