package router

import (
	"context"
	"errors"
	"strings"

	"rollbot/internal/settings"
	"rollbot/internal/storage"
	kit "rollbot/internal/transport"
	logx "rollbot/pkg/logx"
)

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	text := m.Text
	if text == "" {
		text = m.Caption
	}
	here := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}

	switch {
	case strings.HasPrefix(text, "/start"):
		r.sendMainMenu(ctx, here)
		return

	case strings.HasPrefix(text, "/bind_output"):
		if !r.isAdmin(ctx, m.ChatID, m.FromID) {
			return
		}
		if err := r.reg.BindOutput(ctx, m.ChatID, m.ChatTitle, m.ThreadID, m.FromID); err != nil {
			r.log.Error("bind output failed", logx.Int64("chat", m.ChatID), logx.Err(err))
			return
		}
		r.sendText(ctx, here, "Done! This topic is now the delivery output.")
		return

	case strings.HasPrefix(text, "/bind "):
		if !r.isAdmin(ctx, m.ChatID, m.FromID) {
			r.sendText(ctx, here, "Only group admins can bind topics.")
			return
		}
		category := strings.TrimSpace(strings.TrimPrefix(text, "/bind "))
		if category == "" || category == storage.OutputCategory {
			return
		}
		if err := r.reg.Bind(ctx, m.ChatID, m.ChatTitle, m.ThreadID, category, m.FromID); err != nil {
			r.log.Error("bind failed", logx.Int64("chat", m.ChatID), logx.Err(err))
			return
		}
		r.sendText(ctx, here, "This topic is now bound to category ["+category+"].")
		return
	}

	if m.Media != kit.MediaNone && m.Fingerprint != "" {
		r.ingest(ctx, m)
	}
}

// ingest files a media contribution under the category its topic is bound
// to. Unbound topics are ignored; duplicates are dropped quietly (or with a
// note when duplicate_notify is on).
func (r *Router) ingest(ctx context.Context, m *kit.Message) {
	category, ok, err := r.reg.SourceCategory(ctx, m.ChatID, m.ThreadID)
	if err != nil {
		r.log.Error("category lookup failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		return
	}
	if !ok {
		return
	}

	snap, err := settings.Load(ctx, r.store)
	if err != nil {
		r.log.Error("settings load failed", logx.Err(err))
		snap = settings.Defaults()
	}
	here := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}

	id, err := r.store.InsertMedia(ctx, storage.Item{
		ChatID:      m.ChatID,
		TopicID:     m.ThreadID,
		MessageID:   m.ID,
		Category:    category,
		Fingerprint: m.Fingerprint,
		Caption:     m.Caption,
	})
	if errors.Is(err, storage.ErrDuplicate) {
		r.log.Debug("duplicate contribution dropped",
			logx.Int64("chat", m.ChatID), logx.String("fingerprint", m.Fingerprint))
		if snap.DuplicateNotify {
			r.sendText(ctx, here, "That one is already in the library, skipped.")
		}
		return
	}
	if err != nil {
		r.log.Error("ingest failed", logx.Int64("chat", m.ChatID), logx.Err(err))
		return
	}

	r.log.Info("media ingested",
		logx.Int64("chat", m.ChatID), logx.String("category", category),
		logx.Int64("item", id), logx.String("kind", string(m.Media)))
	if snap.IngestBanner {
		r.sendText(ctx, here, "Added to ["+category+"], thanks!")
	}
}
