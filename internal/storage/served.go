package storage

import "context"

// MarkServed records an item as shown since the last reset. Re-marking an
// already served item is a no-op.
func (s *Store) MarkServed(ctx context.Context, mediaID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO served(media_id) VALUES(?)`, mediaID)
	return err
}

// UnmarkServed lets an item re-enter the eligible pool (cooldown rollback).
func (s *Store) UnmarkServed(ctx context.Context, mediaID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM served WHERE media_id = ?`, mediaID)
	return err
}

// ResetServed clears the served markers of one group's category pool and
// reports how many were cleared. Markers of other groups or categories are
// untouched even when category names collide across groups.
func (s *Store) ResetServed(ctx context.Context, chatID int64, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM served WHERE media_id IN (SELECT id FROM media WHERE chat_id = ? AND category = ?)`,
		chatID, category)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneOrphanServed drops served markers whose media row is gone
// (e.g. after a wipe). Maintenance only.
func (s *Store) PruneOrphanServed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM served WHERE media_id NOT IN (SELECT id FROM media)`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
