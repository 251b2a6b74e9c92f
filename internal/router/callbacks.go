package router

import (
	"context"
	"errors"
	"strconv"

	"rollbot/internal/dispense"
	"rollbot/internal/favorites"
	"rollbot/internal/settings"
	kit "rollbot/internal/transport"
	logx "rollbot/pkg/logx"
	"rollbot/pkg/tgui"
)

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	section, action, payload := tgui.Split(cb.Data)
	ref := kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}

	switch section {
	case secMenu:
		switch action {
		case "home":
			r.editMainMenu(ctx, ref)
		case "cats":
			r.editCategories(ctx, ref, cb.ChatID)
		}
		r.answer(ctx, cb.ID, "", false)

	case secRoll:
		r.answer(ctx, cb.ID, "Rolling...", false)
		r.serve(ctx, cb, action == "next", payload)

	case secFav:
		r.favoriteCallback(ctx, cb, action, payload, ref)

	case secBoard:
		r.editLeaderboard(ctx, ref, cb.ChatID)
		r.answer(ctx, cb.ID, "", false)

	case secSet:
		r.settingsCallback(ctx, cb, action, payload, ref)
	}
}

// serve runs one distribution transaction and translates the outcome into
// user-facing text. The callback's own message doubles as the rollback
// target for replace mode: on a "next" press it is the action message of the
// previous serve.
func (r *Router) serve(ctx context.Context, cb *kit.Callback, isNext bool, category string) {
	here := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	if category == "" {
		return
	}

	snap, err := settings.Load(ctx, r.store)
	if err != nil {
		r.log.Error("settings load failed", logx.Err(err))
		snap = settings.Defaults()
	}

	req := dispense.Request{
		ChatID:   cb.ChatID,
		UserID:   cb.FromID,
		Category: category,
		Next:     isNext,
		Settings: snap,
	}
	if isNext {
		req.PrevMenu = kit.MessageRef{ChatID: cb.ChatID, ThreadID: cb.ThreadID, MessageID: cb.MessageID}
	}

	out, err := r.engine.Serve(ctx, req)
	if err != nil {
		r.log.Error("serve failed", logx.Int64("chat", cb.ChatID), logx.String("category", category), logx.Err(err))
		r.sendText(ctx, here, "Something went wrong, please try again.")
		return
	}

	switch out.Status {
	case dispense.NotConfigured:
		r.sendText(ctx, here, "No output topic is set yet. An admin needs to run /bind_output first.")
	case dispense.EmptyCategory:
		r.sendText(ctx, here, "Category ["+category+"] has no content yet.")
	case dispense.Delivered:
		// The engine already delivered to the output topic.
	}
}

func (r *Router) favoriteCallback(ctx context.Context, cb *kit.Callback, action, payload string, ref kit.MessageRef) {
	switch action {
	case "add":
		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return
		}
		switch err := r.favs.Add(ctx, cb.FromID, id); {
		case errors.Is(err, favorites.ErrAlreadyFavorited):
			r.answer(ctx, cb.ID, "Already in your favorites.", true)
		case err != nil:
			r.log.Error("favorite add failed", logx.Int64("user", cb.FromID), logx.Err(err))
			r.answer(ctx, cb.ID, "Could not save, sorry.", true)
		default:
			r.answer(ctx, cb.ID, "Saved to favorites! ❤️", true)
		}

	case "list":
		r.editFavorites(ctx, ref, cb.FromID, 0)
		r.answer(ctx, cb.ID, "", false)

	case "page":
		page, err := strconv.Atoi(payload)
		if err != nil {
			return
		}
		r.editFavorites(ctx, ref, cb.FromID, page)
		r.answer(ctx, cb.ID, "", false)

	case "view":
		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return
		}
		item, ok, err := r.favs.Get(ctx, id)
		if err != nil || !ok {
			r.answer(ctx, cb.ID, "That item is gone.", true)
			return
		}
		origin := kit.MessageRef{ChatID: item.ChatID, ThreadID: item.TopicID, MessageID: item.MessageID}
		here := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
		if _, err := r.ad.Copy(ctx, here, origin, nil); err != nil {
			r.log.Warn("favorite view failed", logx.Int64("item", id), logx.Err(err))
		}
		r.answer(ctx, cb.ID, "", false)

	case "del":
		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return
		}
		if err := r.favs.Remove(ctx, cb.FromID, id); err != nil {
			r.log.Error("favorite remove failed", logx.Int64("user", cb.FromID), logx.Err(err))
		}
		r.answer(ctx, cb.ID, "Removed from favorites.", false)
		r.editFavorites(ctx, ref, cb.FromID, 0)
	}
}

func (r *Router) settingsCallback(ctx context.Context, cb *kit.Callback, action, payload string, ref kit.MessageRef) {
	if !r.isAdmin(ctx, cb.ChatID, cb.FromID) {
		r.answer(ctx, cb.ID, "Only group admins can change settings.", true)
		return
	}

	toggles := map[string]string{
		"repeat":  settings.KeyAntiRepeat,
		"jump":    settings.KeyJumpLink,
		"dup":     settings.KeyDuplicateNotify,
		"banner":  settings.KeyIngestBanner,
		"replace": settings.KeyNextReplace,
	}

	switch {
	case action == "main":
		r.editSettings(ctx, ref)

	case action == "mode":
		if _, err := settings.ToggleDisplayMode(ctx, r.store); err != nil {
			r.log.Error("mode toggle failed", logx.Err(err))
		}
		r.editSettings(ctx, ref)

	case toggles[action] != "":
		if _, err := settings.ToggleBool(ctx, r.store, toggles[action]); err != nil {
			r.log.Error("setting toggle failed", logx.String("key", toggles[action]), logx.Err(err))
		}
		r.editSettings(ctx, ref)

	case action == "stats":
		r.editStats(ctx, ref, cb.ChatID)

	case action == "unbind":
		r.editUnbindList(ctx, ref, cb.ChatID)

	case action == "unbind_do":
		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return
		}
		if err := r.reg.Unbind(ctx, cb.ChatID, id); err != nil {
			r.log.Error("unbind failed", logx.Int64("binding", id), logx.Err(err))
		}
		r.answer(ctx, cb.ID, "Unbound.", true)
		r.editUnbindList(ctx, ref, cb.ChatID)
		return

	case action == "wipe":
		r.editWipeConfirm(ctx, ref)

	case action == "wipe_do":
		if err := r.store.WipeChat(ctx, cb.ChatID); err != nil {
			r.log.Error("wipe failed", logx.Int64("chat", cb.ChatID), logx.Err(err))
			r.answer(ctx, cb.ID, "Wipe failed.", true)
			return
		}
		r.log.Warn("group wiped", logx.Int64("chat", cb.ChatID), logx.Int64("by", cb.FromID))
		r.answer(ctx, cb.ID, "Wiped.", true)
		r.editMainMenu(ctx, ref)
		return
	}

	r.answer(ctx, cb.ID, "", false)
}
