// Package registry resolves what a group's topics mean: which topic feeds
// which category, and which topic is the group's delivery sink.
package registry

import (
	"context"

	"rollbot/internal/storage"
	logx "rollbot/pkg/logx"
)

// Bindings is the slice of the store the registry needs.
type Bindings interface {
	AddBinding(ctx context.Context, b storage.Binding) (int64, error)
	DeleteBinding(ctx context.Context, chatID, id int64) error
	ListBindings(ctx context.Context, chatID int64) ([]storage.Binding, error)
	Categories(ctx context.Context, chatID int64) ([]string, error)
	ResolveCategory(ctx context.Context, chatID int64, topicID int) (string, bool, error)
	ResolveOutput(ctx context.Context, chatID int64) (int, bool, error)
}

type Service struct {
	store Bindings
	log   logx.Logger
}

func New(store Bindings, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log}
}

// Bind attaches a category to (chat, topic). topicID 0 binds the whole group.
func (s *Service) Bind(ctx context.Context, chatID int64, chatTitle string, topicID int, category string, boundBy int64) error {
	id, err := s.store.AddBinding(ctx, storage.Binding{
		ChatID:    chatID,
		ChatTitle: chatTitle,
		TopicID:   topicID,
		Category:  category,
		BoundBy:   boundBy,
	})
	if err != nil {
		return err
	}
	s.log.Info("topic bound",
		logx.Int64("chat", chatID), logx.Int("topic", topicID),
		logx.String("category", category), logx.Int64("binding", id))
	return nil
}

// BindOutput designates (chat, topic) as the group's delivery sink.
func (s *Service) BindOutput(ctx context.Context, chatID int64, chatTitle string, topicID int, boundBy int64) error {
	return s.Bind(ctx, chatID, chatTitle, topicID, storage.OutputCategory, boundBy)
}

func (s *Service) Unbind(ctx context.Context, chatID, bindingID int64) error {
	if err := s.store.DeleteBinding(ctx, chatID, bindingID); err != nil {
		return err
	}
	s.log.Info("topic unbound", logx.Int64("chat", chatID), logx.Int64("binding", bindingID))
	return nil
}

func (s *Service) List(ctx context.Context, chatID int64) ([]storage.Binding, error) {
	return s.store.ListBindings(ctx, chatID)
}

func (s *Service) Categories(ctx context.Context, chatID int64) ([]string, error) {
	return s.store.Categories(ctx, chatID)
}

// SourceCategory returns the category contributions to (chat, topic) belong
// to, or ok=false when the topic is unbound.
func (s *Service) SourceCategory(ctx context.Context, chatID int64, topicID int) (string, bool, error) {
	return s.store.ResolveCategory(ctx, chatID, topicID)
}

// OutputSink returns the group's delivery target, or ok=false when no
// output topic is bound yet. Callers treat the latter as a user-visible
// "not configured" state, not an error.
func (s *Service) OutputSink(ctx context.Context, chatID int64) (topicID int, ok bool, err error) {
	return s.store.ResolveOutput(ctx, chatID)
}
