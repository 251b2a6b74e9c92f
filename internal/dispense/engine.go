// Package dispense implements the random distribution flow: pick an unseen
// item from a group's category pool, deliver it to the group's output topic,
// and keep the served/cooldown/counter state honest while users hammer the
// "next" button.
package dispense

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rollbot/internal/settings"
	"rollbot/internal/storage"
	kit "rollbot/internal/transport"
	logx "rollbot/pkg/logx"
)

// CooldownWindow is the anti-abuse window: a "next" press inside it rolls
// back the previous serve instead of counting it.
const CooldownWindow = 30 * time.Second

// Catalog is the slice of the store the engine reads and counts from.
type Catalog interface {
	PickRandom(ctx context.Context, chatID int64, category string, excludeServed bool) (storage.Item, bool, error)
	CountMedia(ctx context.Context, chatID int64, category string) (int64, error)
	BumpView(ctx context.Context, id int64, delta int64) error
}

// ServedLog tracks which items were already shown since the last reset.
type ServedLog interface {
	MarkServed(ctx context.Context, mediaID int64) error
	UnmarkServed(ctx context.Context, mediaID int64) error
	ResetServed(ctx context.Context, chatID int64, category string) (int64, error)
}

// Cooldowns is the per-user last-serve record.
type Cooldowns interface {
	LastServe(ctx context.Context, userID int64) (storage.LastServe, bool, error)
	RecordServe(ctx context.Context, userID, mediaID int64, at time.Time) error
}

// Sinks resolves a group's output topic.
type Sinks interface {
	OutputSink(ctx context.Context, chatID int64) (topicID int, ok bool, err error)
}

// DeliverySpec tells the deliverer how to present the item.
type DeliverySpec struct {
	Mode     settings.DisplayMode
	Category string
	JumpLink bool
	IsNext   bool
}

// Deliverer hands the picked item to the chat platform. Implemented by the
// router (it owns keyboards and copy); faked in tests.
type Deliverer interface {
	Deliver(ctx context.Context, sink kit.ChatTarget, item storage.Item, spec DeliverySpec) (kit.MessageRef, error)
	Notify(ctx context.Context, sink kit.ChatTarget, text string) error
	Delete(ctx context.Context, ref kit.MessageRef) error
}

type Status int

const (
	// Delivered: an item was picked and sent to the output topic.
	Delivered Status = iota
	// NotConfigured: the group has no output topic bound. User-visible,
	// not retryable until an admin binds one.
	NotConfigured
	// EmptyCategory: the pool holds zero items.
	EmptyCategory
)

func (s Status) String() string {
	switch s {
	case Delivered:
		return "delivered"
	case NotConfigured:
		return "not_configured"
	case EmptyCategory:
		return "empty_category"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Request is one serve invocation. Settings are a snapshot loaded by the
// caller so flags cannot shift mid-transaction.
type Request struct {
	ChatID   int64
	UserID   int64
	Category string

	// Next marks a "show me another" press; it triggers the cooldown check
	// and, in replace mode, removal of the previous action message.
	Next bool
	// PrevMenu is the action message of the previous serve, if the caller
	// knows it. Only used in replace mode.
	PrevMenu kit.MessageRef

	Settings settings.Snapshot
	Now      time.Time // zero means time.Now()
}

// Outcome reports what a serve did.
type Outcome struct {
	Status  Status
	Item    storage.Item
	Reset   bool // an exhaustion reset (with broadcast notice) happened
	SinkMsg kit.MessageRef
}

type Engine struct {
	catalog   Catalog
	served    ServedLog
	cooldowns Cooldowns
	sinks     Sinks
	deliver   Deliverer
	log       logx.Logger
}

func NewEngine(catalog Catalog, served ServedLog, cooldowns Cooldowns, sinks Sinks, deliver Deliverer, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		catalog:   catalog,
		served:    served,
		cooldowns: cooldowns,
		sinks:     sinks,
		deliver:   deliver,
		log:       log,
	}
}

// Serve runs one distribution transaction. State mutations for the picked
// item (served marker, cooldown row, view counter) happen only after
// delivery succeeded; the compensating rollback of the previous item and an
// exhaustion reset happen before, since they are what make the pick valid.
func (e *Engine) Serve(ctx context.Context, req Request) (Outcome, error) {
	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}
	log := e.log.With(
		logx.String("serve", uuid.NewString()),
		logx.Int64("chat", req.ChatID),
		logx.Int64("user", req.UserID),
		logx.String("category", req.Category),
	)

	sinkTopic, ok, err := e.sinks.OutputSink(ctx, req.ChatID)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Status: NotConfigured}, nil
	}
	sink := kit.ChatTarget{ChatID: req.ChatID, ThreadID: sinkTopic}

	if req.Next {
		if err := e.rollbackIfRushed(ctx, req, now, log); err != nil {
			return Outcome{}, err
		}
	}

	item, reset, found, err := e.pick(ctx, req, sink, log)
	if err != nil {
		return Outcome{}, err
	}
	if !found {
		return Outcome{Status: EmptyCategory, Reset: reset}, nil
	}

	// Replace mode: drop the previous action message so the output topic
	// doesn't fill up with stale keyboards. Best-effort.
	if req.Next && req.Settings.NextReplace && req.PrevMenu.MessageID != 0 {
		if err := e.deliver.Delete(ctx, req.PrevMenu); err != nil {
			log.Debug("previous menu delete failed", logx.Err(err))
		}
	}

	ref, err := e.deliver.Deliver(ctx, sink, item, DeliverySpec{
		Mode:     req.Settings.DisplayMode,
		Category: req.Category,
		JumpLink: req.Settings.JumpLink,
		IsNext:   req.Next,
	})
	if err != nil {
		// Delivery failed: leave counters and markers untouched so the item
		// stays eligible.
		return Outcome{}, err
	}

	if req.Settings.AntiRepeat {
		if err := e.served.MarkServed(ctx, item.ID); err != nil {
			return Outcome{}, err
		}
	}
	// Record unconditionally so each rollback targets the immediately prior
	// serve, even with anti-repeat off.
	if err := e.cooldowns.RecordServe(ctx, req.UserID, item.ID, now); err != nil {
		return Outcome{}, err
	}
	if err := e.catalog.BumpView(ctx, item.ID, +1); err != nil {
		return Outcome{}, err
	}

	log.Info("served", logx.Int64("item", item.ID), logx.Bool("reset", reset), logx.Bool("next", req.Next))
	return Outcome{Status: Delivered, Item: item, Reset: reset, SinkMsg: ref}, nil
}

// rollbackIfRushed undoes the effects of the user's previous serve when the
// "next" press lands inside the cooldown window: clamped view decrement, and
// (with anti-repeat on) the item re-enters the eligible pool.
func (e *Engine) rollbackIfRushed(ctx context.Context, req Request, now time.Time, log logx.Logger) error {
	last, ok, err := e.cooldowns.LastServe(ctx, req.UserID)
	if err != nil {
		return err
	}
	if !ok || now.Sub(last.At) >= CooldownWindow {
		return nil
	}
	if err := e.catalog.BumpView(ctx, last.MediaID, -1); err != nil {
		return err
	}
	if req.Settings.AntiRepeat {
		if err := e.served.UnmarkServed(ctx, last.MediaID); err != nil {
			return err
		}
	}
	log.Debug("cooldown rollback", logx.Int64("item", last.MediaID), logx.Duration("age", now.Sub(last.At)))
	return nil
}

// pick selects the next item. With anti-repeat on and the fresh pool empty,
// a non-empty category triggers the exhaustion reset: served markers for
// this group+category are cleared, the output topic gets one notice, and the
// pick retries against the full pool.
func (e *Engine) pick(ctx context.Context, req Request, sink kit.ChatTarget, log logx.Logger) (storage.Item, bool, bool, error) {
	if !req.Settings.AntiRepeat {
		item, found, err := e.catalog.PickRandom(ctx, req.ChatID, req.Category, false)
		return item, false, found, err
	}

	item, found, err := e.catalog.PickRandom(ctx, req.ChatID, req.Category, true)
	if err != nil {
		return storage.Item{}, false, false, err
	}
	if found {
		return item, false, true, nil
	}

	total, err := e.catalog.CountMedia(ctx, req.ChatID, req.Category)
	if err != nil {
		return storage.Item{}, false, false, err
	}
	if total == 0 {
		return storage.Item{}, false, false, nil
	}

	cleared, err := e.served.ResetServed(ctx, req.ChatID, req.Category)
	if err != nil {
		return storage.Item{}, false, false, err
	}
	log.Info("category exhausted, served markers reset",
		logx.Int64("cleared", cleared), logx.Int64("total", total))
	if err := e.deliver.Notify(ctx, sink, resetNotice(req.Category)); err != nil {
		// The notice is informational; a failed broadcast must not block
		// the serve itself.
		log.Warn("reset notice failed", logx.Err(err))
	}

	item, found, err = e.catalog.PickRandom(ctx, req.ChatID, req.Category, true)
	if err != nil {
		return storage.Item{}, true, false, err
	}
	return item, true, found, nil
}

func resetNotice(category string) string {
	return fmt.Sprintf("🎉 Everything in [%s] has been seen! The anti-repeat memory was reset — starting a fresh round.", category)
}
