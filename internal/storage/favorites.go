package storage

import (
	"context"
	"time"
)

// AddFavorite saves an item to a user's favorites. A second save of the same
// item returns ErrDuplicate so the UI can answer "already saved" instead of
// pretending the save happened twice.
func (s *Store) AddFavorite(ctx context.Context, userID, mediaID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO favorites(user_id, media_id) VALUES(?,?)`, userID, mediaID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// RemoveFavorite is idempotent; removing an absent favorite is not an error.
func (s *Store) RemoveFavorite(ctx context.Context, userID, mediaID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND media_id = ?`, userID, mediaID)
	return err
}

// ListFavorites returns one page of a user's saved items, most recent first,
// plus the total count for pager rendering.
func (s *Store) ListFavorites(ctx context.Context, userID int64, limit, offset int) ([]Item, int64, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM favorites WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT m.id, m.chat_id, m.topic_id, m.message_id, m.category, m.fingerprint, m.caption, m.view_count, m.added_at
		 FROM favorites f JOIN media m ON m.id = f.media_id
		 WHERE f.user_id = ?
		 ORDER BY f.saved_at DESC, f.media_id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		var added string
		if err := rows.Scan(&it.ID, &it.ChatID, &it.TopicID, &it.MessageID, &it.Category,
			&it.Fingerprint, &it.Caption, &it.ViewCount, &added); err != nil {
			return nil, 0, err
		}
		it.AddedAt, _ = time.Parse(time.DateTime, added)
		out = append(out, it)
	}
	return out, total, rows.Err()
}
