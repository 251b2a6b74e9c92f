// Package router is the transport glue: it decodes inbound updates into
// commands, menu callbacks and contributions, applies the admin gate, and
// renders the inline-keyboard UI. Core semantics live in dispense/registry/
// favorites; the router only translates outcomes into user-facing text.
package router

import (
	"context"
	"runtime/debug"

	"rollbot/internal/dispense"
	"rollbot/internal/favorites"
	"rollbot/internal/registry"
	"rollbot/internal/storage"
	kit "rollbot/internal/transport"
	logx "rollbot/pkg/logx"
)

type Router struct {
	ad     kit.Adapter
	admin  kit.AdminChecker
	store  *storage.Store
	reg    *registry.Service
	engine *dispense.Engine
	favs   *favorites.Service
	log    logx.Logger
}

func New(ad kit.Adapter, admin kit.AdminChecker, store *storage.Store, reg *registry.Service, engine *dispense.Engine, favs *favorites.Service, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{ad: ad, admin: admin, store: store, reg: reg, engine: engine, favs: favs, log: log}
}

// Run consumes updates until ctx is cancelled. Each update is handled in its
// own goroutine: updates are independent short-lived tasks and a slow serve
// for one user must not stall everyone else.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			go r.handle(ctx, up)
		}
	}
}

func (r *Router) handle(ctx context.Context, up kit.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("update handler panicked",
				logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			r.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			r.handleCallback(ctx, up.Callback)
		}
	}
}

// isAdmin gates admin-only surfaces. Lookup failures deny: better to refuse
// an admin once than to expose settings to everyone.
func (r *Router) isAdmin(ctx context.Context, chatID, userID int64) bool {
	ok, err := r.admin.IsChatAdmin(ctx, chatID, userID)
	if err != nil {
		r.log.Warn("admin check failed", logx.Int64("chat", chatID), logx.Int64("user", userID), logx.Err(err))
		return false
	}
	return ok
}

func (r *Router) sendText(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := r.ad.SendText(ctx, to, text, nil); err != nil {
		r.log.Warn("send failed", logx.Int64("chat", to.ChatID), logx.Err(err))
	}
}

func (r *Router) answer(ctx context.Context, callbackID, text string, alert bool) {
	if err := r.ad.AnswerCallback(ctx, callbackID, text, alert); err != nil {
		r.log.Debug("answer callback failed", logx.Err(err))
	}
}
