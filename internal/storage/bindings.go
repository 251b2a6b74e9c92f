package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// AddBinding inserts a binding row. Duplicates are allowed on purpose: the
// original deployment never enforced uniqueness and resolution takes the
// first matching row, so extra rows are inert until unbound.
func (s *Store) AddBinding(ctx context.Context, b Binding) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO bindings(chat_id, chat_title, topic_id, category, bound_by) VALUES(?,?,?,?,?)`,
		b.ChatID, b.ChatTitle, b.TopicID, b.Category, b.BoundBy,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// DeleteBinding removes one binding by id, scoped to the owning chat so a
// crafted callback cannot unbind another group's topics.
func (s *Store) DeleteBinding(ctx context.Context, chatID, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bindings WHERE id = ? AND chat_id = ?`, id, chatID)
	return err
}

func (s *Store) ListBindings(ctx context.Context, chatID int64) ([]Binding, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, chat_title, topic_id, category, bound_by, created_at
		 FROM bindings WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Binding
	for rows.Next() {
		var b Binding
		var created string
		if err := rows.Scan(&b.ID, &b.ChatID, &b.ChatTitle, &b.TopicID, &b.Category, &b.BoundBy, &created); err != nil {
			return nil, err
		}
		b.CreatedAt, _ = time.Parse(time.DateTime, created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Categories lists the distinct source categories bound in a chat,
// excluding the reserved output sink.
func (s *Store) Categories(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT category FROM bindings WHERE chat_id = ? AND category != ? ORDER BY category`,
		chatID, OutputCategory)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ResolveCategory returns the source category bound to (chat, topic).
// A whole-group binding (topic_id = 0) matches any topic.
func (s *Store) ResolveCategory(ctx context.Context, chatID int64, topicID int) (string, bool, error) {
	var c string
	err := s.db.QueryRowContext(ctx,
		`SELECT category FROM bindings
		 WHERE chat_id = ? AND (topic_id = ? OR topic_id = 0) AND category != ?
		 ORDER BY id LIMIT 1`,
		chatID, topicID, OutputCategory).Scan(&c)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return c, true, nil
}

// ResolveOutput returns the chat's delivery sink topic, if bound.
// With several output rows the first by id wins.
func (s *Store) ResolveOutput(ctx context.Context, chatID int64) (int, bool, error) {
	var topic int
	err := s.db.QueryRowContext(ctx,
		`SELECT topic_id FROM bindings WHERE chat_id = ? AND category = ? ORDER BY id LIMIT 1`,
		chatID, OutputCategory).Scan(&topic)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return topic, true, nil
}
