// Package favorites manages per-user saved items.
package favorites

import (
	"context"
	"errors"

	"rollbot/internal/storage"
	logx "rollbot/pkg/logx"
)

// ErrAlreadyFavorited distinguishes a repeat save from a real failure.
var ErrAlreadyFavorited = errors.New("favorites: already saved")

// PageSize is how many favorites one pager page shows.
const PageSize = 5

// Store is the slice of the persistence layer the service needs.
type Store interface {
	AddFavorite(ctx context.Context, userID, mediaID int64) error
	RemoveFavorite(ctx context.Context, userID, mediaID int64) error
	ListFavorites(ctx context.Context, userID int64, limit, offset int) ([]storage.Item, int64, error)
	GetMedia(ctx context.Context, id int64) (storage.Item, bool, error)
}

type Service struct {
	store Store
	log   logx.Logger
}

func New(store Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log}
}

// Add saves an item for the user. Saving the same item again returns
// ErrAlreadyFavorited; the stored record stays single.
func (s *Service) Add(ctx context.Context, userID, mediaID int64) error {
	err := s.store.AddFavorite(ctx, userID, mediaID)
	if errors.Is(err, storage.ErrDuplicate) {
		return ErrAlreadyFavorited
	}
	if err != nil {
		return err
	}
	s.log.Debug("favorite added", logx.Int64("user", userID), logx.Int64("item", mediaID))
	return nil
}

// Remove is idempotent.
func (s *Service) Remove(ctx context.Context, userID, mediaID int64) error {
	return s.store.RemoveFavorite(ctx, userID, mediaID)
}

// Page holds one pager page of a user's favorites, most recent first.
type Page struct {
	Items []storage.Item
	Total int64
	Num   int // zero-based page number
}

func (p Page) HasPrev() bool { return p.Num > 0 }
func (p Page) HasNext() bool { return int64((p.Num+1)*PageSize) < p.Total }

func (s *Service) List(ctx context.Context, userID int64, page int) (Page, error) {
	if page < 0 {
		page = 0
	}
	items, total, err := s.store.ListFavorites(ctx, userID, PageSize, page*PageSize)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, Total: total, Num: page}, nil
}

// Get resolves a saved item for re-display.
func (s *Service) Get(ctx context.Context, mediaID int64) (storage.Item, bool, error) {
	return s.store.GetMedia(ctx, mediaID)
}
