package storage

import (
	"errors"
	"time"
)

// ErrDuplicate is returned by inserts that hit a uniqueness constraint
// (media fingerprint inside a group, favorite per user).
var ErrDuplicate = errors.New("storage: duplicate row")

// Config configures the sqlite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// OutputCategory is the reserved category name marking a binding as the
// group's delivery sink rather than an ingestion source.
const OutputCategory = "output"

// Binding maps a (group, topic) to a category. TopicID 0 means the binding
// covers the whole group (messages outside any forum topic included).
type Binding struct {
	ID        int64
	ChatID    int64
	ChatTitle string
	TopicID   int
	Category  string
	BoundBy   int64
	CreatedAt time.Time
}

// Item is one row of the media catalog.
type Item struct {
	ID          int64
	ChatID      int64
	TopicID     int
	MessageID   int
	Category    string
	Fingerprint string
	Caption     string
	ViewCount   int64
	AddedAt     time.Time
}

// LastServe is the per-user cooldown row.
type LastServe struct {
	UserID  int64
	MediaID int64
	At      time.Time
}

// Stats is the per-group dashboard summary.
type Stats struct {
	MediaCount    int64
	BindingCount  int64
	FavoriteCount int64
}
