package router

import (
	"context"
	"fmt"
	"strconv"

	tele "gopkg.in/telebot.v4"

	"rollbot/internal/favorites"
	"rollbot/internal/settings"
	kit "rollbot/internal/transport"
	logx "rollbot/pkg/logx"
	"rollbot/pkg/tgui"
)

// Callback data sections. Payloads are plain ids/names; see tgui.Data.
const (
	secMenu  = "menu" // home, cats
	secRoll  = "roll" // pick:<category>, next:<category>
	secFav   = "fav"  // add:<id>, list, page:<n>, view:<id>, del:<id>
	secBoard = "board"
	secSet   = "set" // main, mode, repeat, jump, dup, banner, replace, stats, unbind, unbind_do:<id>, wipe, wipe_do
)

func onOff(v bool) string {
	if v {
		return "✅ on"
	}
	return "❌ off"
}

func (r *Router) menuMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("🎲 Roll something", tgui.Data(secMenu, "cats", ""))).
		Row(tgui.Btn("🏆 Leaderboard", tgui.Data(secBoard, "top", "")),
			tgui.Btn("📁 Favorites", tgui.Data(secFav, "list", ""))).
		Row(tgui.Btn("⚙️ Settings (admins)", tgui.Data(secSet, "main", ""))).
		Markup()
}

func backMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("🏠 Main menu", tgui.Data(secMenu, "home", ""))).
		Markup()
}

func settingsBackMarkup() *tele.ReplyMarkup {
	return tgui.NewInline().
		Row(tgui.Btn("⬅️ Back to settings", tgui.Data(secSet, "main", ""))).
		Markup()
}

func (r *Router) sendMainMenu(ctx context.Context, to kit.ChatTarget) {
	opt := &kit.SendOptions{ReplyMarkupAdapter: r.menuMarkup()}
	if _, err := r.ad.SendText(ctx, to, "Hi! What would you like to see today?", opt); err != nil {
		r.log.Warn("main menu send failed", logx.Err(err))
	}
}

func (r *Router) edit(ctx context.Context, ref kit.MessageRef, text string, markup *tele.ReplyMarkup) {
	opt := &kit.SendOptions{ReplyMarkupAdapter: markup}
	if err := r.ad.EditText(ctx, ref, text, opt); err != nil {
		r.log.Debug("menu edit failed", logx.Err(err))
	}
}

func (r *Router) editMainMenu(ctx context.Context, ref kit.MessageRef) {
	r.edit(ctx, ref, "Main menu — pick an option:", r.menuMarkup())
}

func (r *Router) editCategories(ctx context.Context, ref kit.MessageRef, chatID int64) {
	cats, err := r.reg.Categories(ctx, chatID)
	if err != nil {
		r.log.Error("categories lookup failed", logx.Int64("chat", chatID), logx.Err(err))
		return
	}
	if len(cats) == 0 {
		r.edit(ctx, ref, "No categories are bound yet. Admins can use /bind in a topic.", backMarkup())
		return
	}
	kb := tgui.NewInline()
	for _, c := range cats {
		kb.Row(tgui.Btn("📂 "+c, tgui.Data(secRoll, "pick", c)))
	}
	kb.Row(tgui.Btn("🏠 Main menu", tgui.Data(secMenu, "home", "")))
	r.edit(ctx, ref, "Pick a category:", kb.Markup())
}

func (r *Router) editFavorites(ctx context.Context, ref kit.MessageRef, userID int64, page int) {
	p, err := r.favs.List(ctx, userID, page)
	if err != nil {
		r.log.Error("favorites list failed", logx.Int64("user", userID), logx.Err(err))
		return
	}
	if len(p.Items) == 0 {
		r.edit(ctx, ref, "Your favorites are empty so far.", backMarkup())
		return
	}

	text := fmt.Sprintf("📁 Your favorites (%d total):", p.Total)
	kb := tgui.NewInline()
	for i, it := range p.Items {
		id := strconv.FormatInt(it.ID, 10)
		kb.Row(
			tgui.Btn(fmt.Sprintf("👁️ View #%d", p.Num*favorites.PageSize+i+1), tgui.Data(secFav, "view", id)),
			tgui.Btn("❌ Remove", tgui.Data(secFav, "del", id)),
		)
	}
	var nav []tele.Btn
	if p.HasPrev() {
		nav = append(nav, tgui.Btn("⬅️ Prev", tgui.Data(secFav, "page", strconv.Itoa(p.Num-1))))
	}
	if p.HasNext() {
		nav = append(nav, tgui.Btn("Next ➡️", tgui.Data(secFav, "page", strconv.Itoa(p.Num+1))))
	}
	if len(nav) > 0 {
		kb.Row(nav...)
	}
	kb.Row(tgui.Btn("🏠 Main menu", tgui.Data(secMenu, "home", "")))
	r.edit(ctx, ref, text, kb.Markup())
}

func (r *Router) editLeaderboard(ctx context.Context, ref kit.MessageRef, chatID int64) {
	top, err := r.store.Leaderboard(ctx, chatID, 5)
	if err != nil {
		r.log.Error("leaderboard failed", logx.Int64("chat", chatID), logx.Err(err))
		return
	}
	text := "🏆 Top 5 most viewed:\n\n"
	if len(top) == 0 {
		text += "No data yet."
	}
	for i, it := range top {
		text += fmt.Sprintf("%d. [%s] item #%d — %d views\n", i+1, it.Category, it.ID, it.ViewCount)
	}
	r.edit(ctx, ref, text, backMarkup())
}

func (r *Router) editSettings(ctx context.Context, ref kit.MessageRef) {
	snap, err := settings.Load(ctx, r.store)
	if err != nil {
		r.log.Error("settings load failed", logx.Err(err))
		return
	}

	modeLabel := "copy + jump link"
	if snap.DisplayMode == settings.ModeForward {
		modeLabel = "native forward"
	}
	kb := tgui.NewInline().
		Row(tgui.Btn("🔀 Delivery style: "+modeLabel, tgui.Data(secSet, "mode", ""))).
		Row(tgui.Btn("🔁 Anti-repeat: "+onOff(snap.AntiRepeat), tgui.Data(secSet, "repeat", ""))).
		Row(tgui.Btn("🔗 Jump link: "+onOff(snap.JumpLink), tgui.Data(secSet, "jump", "")),
			tgui.Btn("📣 Dup notify: "+onOff(snap.DuplicateNotify), tgui.Data(secSet, "dup", ""))).
		Row(tgui.Btn("🎉 Ingest banner: "+onOff(snap.IngestBanner), tgui.Data(secSet, "banner", "")),
			tgui.Btn("♻️ Next replaces: "+onOff(snap.NextReplace), tgui.Data(secSet, "replace", ""))).
		Row(tgui.Btn("🗑️ Manage bindings", tgui.Data(secSet, "unbind", "")),
			tgui.Btn("📊 Stats", tgui.Data(secSet, "stats", ""))).
		Row(tgui.Btn("☢️ Wipe this group", tgui.Data(secSet, "wipe", ""))).
		Row(tgui.Btn("🏠 Main menu", tgui.Data(secMenu, "home", "")))
	r.edit(ctx, ref, "⚙️ Control panel (admins only):", kb.Markup())
}

func (r *Router) editUnbindList(ctx context.Context, ref kit.MessageRef, chatID int64) {
	bindings, err := r.reg.List(ctx, chatID)
	if err != nil {
		r.log.Error("bindings list failed", logx.Int64("chat", chatID), logx.Err(err))
		return
	}
	if len(bindings) == 0 {
		r.edit(ctx, ref, "Nothing is bound in this group.", settingsBackMarkup())
		return
	}
	kb := tgui.NewInline()
	for _, b := range bindings {
		label := fmt.Sprintf("🗑️ [%s] topic %d", b.Category, b.TopicID)
		kb.Row(tgui.Btn(label, tgui.Data(secSet, "unbind_do", strconv.FormatInt(b.ID, 10))))
	}
	kb.Row(tgui.Btn("⬅️ Back to settings", tgui.Data(secSet, "main", "")))
	r.edit(ctx, ref, "Tap a binding to remove it:", kb.Markup())
}

func (r *Router) editStats(ctx context.Context, ref kit.MessageRef, chatID int64) {
	st, err := r.store.Stats(ctx, chatID)
	if err != nil {
		r.log.Error("stats failed", logx.Int64("chat", chatID), logx.Err(err))
		return
	}
	text := fmt.Sprintf("📊 This group:\n\n- Items in library: %d\n- Bindings: %d\n- Times favorited: %d",
		st.MediaCount, st.BindingCount, st.FavoriteCount)
	r.edit(ctx, ref, text, settingsBackMarkup())
}

func (r *Router) editWipeConfirm(ctx context.Context, ref kit.MessageRef) {
	kb := tgui.NewInline().
		Row(tgui.Btn("☢️ Yes, wipe everything", tgui.Data(secSet, "wipe_do", ""))).
		Row(tgui.Btn("⬅️ Back to settings", tgui.Data(secSet, "main", "")))
	r.edit(ctx, ref,
		"This removes every item, binding, served marker and favorite of this group. There is no undo.",
		kb.Markup())
}
