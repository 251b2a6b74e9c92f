package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const itemColumns = `id, chat_id, topic_id, message_id, category, fingerprint, caption, view_count, added_at`

func scanItem(row interface{ Scan(...any) error }) (Item, error) {
	var it Item
	var added string
	err := row.Scan(&it.ID, &it.ChatID, &it.TopicID, &it.MessageID, &it.Category,
		&it.Fingerprint, &it.Caption, &it.ViewCount, &added)
	if err != nil {
		return Item{}, err
	}
	it.AddedAt, _ = time.Parse(time.DateTime, added)
	return it, nil
}

// InsertMedia adds an item to the catalog. The (chat_id, fingerprint) unique
// index makes ingestion idempotent per group: the same file contributed twice
// to one group returns ErrDuplicate, while two groups may hold the same
// fingerprint independently.
func (s *Store) InsertMedia(ctx context.Context, it Item) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO media(chat_id, topic_id, message_id, category, fingerprint, caption)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(chat_id, fingerprint) DO NOTHING`,
		it.ChatID, it.TopicID, it.MessageID, it.Category, it.Fingerprint, it.Caption,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrDuplicate
	}
	return res.LastInsertId()
}

func (s *Store) GetMedia(ctx context.Context, id int64) (Item, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM media WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, err
	}
	return it, true, nil
}

// PickRandom selects one item uniformly from a group's category pool.
// With excludeServed set, items present in the served table are skipped.
func (s *Store) PickRandom(ctx context.Context, chatID int64, category string, excludeServed bool) (Item, bool, error) {
	q := `SELECT ` + itemColumns + ` FROM media WHERE chat_id = ? AND category = ?`
	if excludeServed {
		q += ` AND id NOT IN (SELECT media_id FROM served)`
	}
	q += ` ORDER BY RANDOM() LIMIT 1`

	it, err := scanItem(s.db.QueryRowContext(ctx, q, chatID, category))
	if errors.Is(err, sql.ErrNoRows) {
		return Item{}, false, nil
	}
	if err != nil {
		return Item{}, false, err
	}
	return it, true, nil
}

func (s *Store) CountMedia(ctx context.Context, chatID int64, category string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM media WHERE chat_id = ? AND category = ?`, chatID, category).Scan(&n)
	return n, err
}

// BumpView adjusts an item's view counter by delta, clamped at zero so a
// rollback can never drive the counter negative.
func (s *Store) BumpView(ctx context.Context, id int64, delta int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE media SET view_count = MAX(0, view_count + ?) WHERE id = ?`, delta, id)
	return err
}

// Leaderboard returns a group's top items by view count.
func (s *Store) Leaderboard(ctx context.Context, chatID int64, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM media WHERE chat_id = ? ORDER BY view_count DESC, id LIMIT ?`,
		chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Stats summarizes a group's catalog for the admin dashboard.
func (s *Store) Stats(ctx context.Context, chatID int64) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM media WHERE chat_id = ?`, chatID).Scan(&st.MediaCount); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM bindings WHERE chat_id = ?`, chatID).Scan(&st.BindingCount); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM favorites f JOIN media m ON m.id = f.media_id WHERE m.chat_id = ?`,
		chatID).Scan(&st.FavoriteCount); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// WipeChat removes everything a group owns: catalog, served markers,
// favorites pointing at its items, and bindings. Used by the danger-zone
// admin action only.
func (s *Store) WipeChat(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	steps := []string{
		`DELETE FROM served WHERE media_id IN (SELECT id FROM media WHERE chat_id = ?)`,
		`DELETE FROM favorites WHERE media_id IN (SELECT id FROM media WHERE chat_id = ?)`,
		`DELETE FROM media WHERE chat_id = ?`,
		`DELETE FROM bindings WHERE chat_id = ?`,
	}
	for _, q := range steps {
		if _, err := tx.ExecContext(ctx, q, chatID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
