package router

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"rollbot/internal/dispense"
	"rollbot/internal/settings"
	"rollbot/internal/storage"
	kit "rollbot/internal/transport"
	logx "rollbot/pkg/logx"
	"rollbot/pkg/tgui"
)

// Delivery presents picked items in the output topic. It implements
// dispense.Deliverer; the engine stays ignorant of keyboards and deep links.
type Delivery struct {
	ad  kit.Adapter
	log logx.Logger
}

func NewDelivery(ad kit.Adapter, log logx.Logger) *Delivery {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Delivery{ad: ad, log: log}
}

func actionRows(kb *tgui.Inline, item storage.Item, spec dispense.DeliverySpec) {
	kb.Row(
		tgui.Btn("⏭️ Another one", tgui.Data(secRoll, "next", spec.Category)),
		tgui.Btn("❤️ Favorite", tgui.Data(secFav, "add", strconv.FormatInt(item.ID, 10))),
	)
	kb.Row(tgui.Btn("🏠 Main menu", tgui.Data(secMenu, "home", "")))
}

// Deliver sends the item to the sink in the configured style and returns the
// message carrying the action keyboard (the target for replace-mode cleanup).
func (d *Delivery) Deliver(ctx context.Context, sink kit.ChatTarget, item storage.Item, spec dispense.DeliverySpec) (kit.MessageRef, error) {
	origin := kit.MessageRef{ChatID: item.ChatID, ThreadID: item.TopicID, MessageID: item.MessageID}

	if spec.Mode == settings.ModeForward {
		if _, err := d.ad.Forward(ctx, sink, origin); err != nil {
			return kit.MessageRef{}, err
		}
		kb := tgui.NewInline()
		actionRows(kb, item, spec)
		opt := &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()}
		return d.ad.SendText(ctx, sink, "👆 Your roll — what next?", opt)
	}

	kb := tgui.NewInline()
	if spec.JumpLink {
		if link, ok := deepLink(item.ChatID, item.MessageID); ok {
			kb.Row(tgui.URLBtn("🔗 Jump to the original", link))
		}
	}
	actionRows(kb, item, spec)
	opt := &kit.SendOptions{ReplyMarkupAdapter: kb.Markup()}
	return d.ad.Copy(ctx, sink, origin, opt)
}

func (d *Delivery) Notify(ctx context.Context, sink kit.ChatTarget, text string) error {
	_, err := d.ad.SendText(ctx, sink, text, nil)
	return err
}

func (d *Delivery) Delete(ctx context.Context, ref kit.MessageRef) error {
	return d.ad.Delete(ctx, ref)
}

// deepLink builds a t.me link to a supergroup message. Telegram only serves
// /c/ links for supergroups, whose ids carry the -100 prefix.
func deepLink(chatID int64, messageID int) (string, bool) {
	s := strconv.FormatInt(chatID, 10)
	if !strings.HasPrefix(s, "-100") {
		return "", false
	}
	return fmt.Sprintf("https://t.me/c/%s/%d", strings.TrimPrefix(s, "-100"), messageID), true
}
