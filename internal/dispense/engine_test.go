package dispense

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"rollbot/internal/registry"
	"rollbot/internal/settings"
	"rollbot/internal/storage"
	kit "rollbot/internal/transport"
	logx "rollbot/pkg/logx"
)

type fakeDeliverer struct {
	mu          sync.Mutex
	delivered   []int64
	notices     []string
	deleted     []kit.MessageRef
	failDeliver bool
	nextMsgID   int
}

func (f *fakeDeliverer) Deliver(_ context.Context, sink kit.ChatTarget, item storage.Item, _ DeliverySpec) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeliver {
		return kit.MessageRef{}, errors.New("send failed")
	}
	f.delivered = append(f.delivered, item.ID)
	f.nextMsgID++
	return kit.MessageRef{ChatID: sink.ChatID, ThreadID: sink.ThreadID, MessageID: f.nextMsgID}, nil
}

func (f *fakeDeliverer) Notify(_ context.Context, _ kit.ChatTarget, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return nil
}

func (f *fakeDeliverer) Delete(_ context.Context, ref kit.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

type fixture struct {
	store  *storage.Store
	engine *Engine
	sink   *fakeDeliverer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg := registry.New(store, logx.Nop())
	sink := &fakeDeliverer{}
	return &fixture{
		store:  store,
		engine: NewEngine(store, store, store, reg, sink, logx.Nop()),
		sink:   sink,
	}
}

func (f *fixture) bindOutput(t *testing.T, chatID int64, topicID int) {
	t.Helper()
	if _, err := f.store.AddBinding(context.Background(), storage.Binding{
		ChatID:   chatID,
		TopicID:  topicID,
		Category: storage.OutputCategory,
	}); err != nil {
		t.Fatalf("AddBinding: %v", err)
	}
}

func (f *fixture) addItem(t *testing.T, chatID int64, category, fingerprint string) int64 {
	t.Helper()
	id, err := f.store.InsertMedia(context.Background(), storage.Item{
		ChatID:      chatID,
		MessageID:   1,
		Category:    category,
		Fingerprint: fingerprint,
	})
	if err != nil {
		t.Fatalf("InsertMedia: %v", err)
	}
	return id
}

func (f *fixture) viewCount(t *testing.T, id int64) int64 {
	t.Helper()
	it, ok, err := f.store.GetMedia(context.Background(), id)
	if err != nil || !ok {
		t.Fatalf("GetMedia(%d): %v ok=%v", id, err, ok)
	}
	return it.ViewCount
}

func TestServeNotConfigured(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.addItem(t, -1, "cats", "fp-1")

	out, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats", Settings: settings.Defaults(),
	})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Status != NotConfigured {
		t.Fatalf("Status = %v, want NotConfigured", out.Status)
	}
	if len(f.sink.delivered) != 0 {
		t.Fatal("delivered despite missing output binding")
	}
}

func TestServeEmptyCategory(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)

	out, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats", Settings: settings.Defaults(),
	})
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if out.Status != EmptyCategory {
		t.Fatalf("Status = %v, want EmptyCategory", out.Status)
	}
	if out.Reset {
		t.Fatal("empty category must not report a reset")
	}
	if len(f.sink.notices) != 0 {
		t.Fatal("empty category must not broadcast a reset notice")
	}
}

func TestExhaustionRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)

	ids := map[int64]bool{
		f.addItem(t, -1, "cats", "fp-1"): true,
		f.addItem(t, -1, "cats", "fp-2"): true,
		f.addItem(t, -1, "cats", "fp-3"): true,
	}

	// Three fresh serves spaced outside the cooldown window: each item is
	// shown exactly once.
	base := time.Now()
	seen := map[int64]bool{}
	for i := 0; i < 3; i++ {
		out, err := f.engine.Serve(context.Background(), Request{
			ChatID: -1, UserID: 7, Category: "cats",
			Settings: settings.Defaults(),
			Now:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("serve %d: %v", i, err)
		}
		if out.Status != Delivered {
			t.Fatalf("serve %d: status %v", i, out.Status)
		}
		if out.Reset {
			t.Fatalf("serve %d: unexpected reset", i)
		}
		if !ids[out.Item.ID] || seen[out.Item.ID] {
			t.Fatalf("serve %d: item %d repeated or unknown", i, out.Item.ID)
		}
		seen[out.Item.ID] = true
	}
	for id := range ids {
		if n := f.viewCount(t, id); n != 1 {
			t.Fatalf("item %d count = %d, want 1", id, n)
		}
	}

	// Fourth serve exhausts the pool: one reset, one notice, one item back
	// at count 2.
	out, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats",
		Settings: settings.Defaults(),
		Now:      base.Add(10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("fourth serve: %v", err)
	}
	if out.Status != Delivered || !out.Reset {
		t.Fatalf("fourth serve: status=%v reset=%v", out.Status, out.Reset)
	}
	if len(f.sink.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(f.sink.notices))
	}
	if n := f.viewCount(t, out.Item.ID); n != 2 {
		t.Fatalf("re-served item count = %d, want 2", n)
	}
}

func TestCooldownRollback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)
	id := f.addItem(t, -1, "cats", "fp-1")

	base := time.Now()
	if _, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats",
		Settings: settings.Defaults(), Now: base,
	}); err != nil {
		t.Fatalf("first serve: %v", err)
	}
	if n := f.viewCount(t, id); n != 1 {
		t.Fatalf("count after first serve = %d, want 1", n)
	}

	// "Next" ten seconds later: the first serve is rolled back, the item
	// re-enters the pool and is served again, so no reset fires and the
	// count stays at 1.
	out, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats", Next: true,
		Settings: settings.Defaults(), Now: base.Add(10 * time.Second),
	})
	if err != nil {
		t.Fatalf("rushed next: %v", err)
	}
	if out.Reset {
		t.Fatal("rushed next triggered a reset on a rolled-back pool")
	}
	if n := f.viewCount(t, id); n != 1 {
		t.Fatalf("count after rushed next = %d, want 1", n)
	}

	// "Next" after the window: no rollback, the single-item pool is
	// exhausted, reset fires and the count climbs to 2.
	out, err = f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats", Next: true,
		Settings: settings.Defaults(), Now: base.Add(10*time.Second + CooldownWindow),
	})
	if err != nil {
		t.Fatalf("patient next: %v", err)
	}
	if !out.Reset {
		t.Fatal("patient next on an exhausted pool should reset")
	}
	if n := f.viewCount(t, id); n != 2 {
		t.Fatalf("count after patient next = %d, want 2", n)
	}
}

func TestCooldownIsPerUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)
	f.addItem(t, -1, "cats", "fp-1")
	f.addItem(t, -1, "cats", "fp-2")

	base := time.Now()
	out, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats",
		Settings: settings.Defaults(), Now: base,
	})
	if err != nil {
		t.Fatalf("user 7 serve: %v", err)
	}
	first := out.Item.ID

	// Another user pressing "next" right away must not roll back user 7's
	// serve.
	if _, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 8, Category: "cats", Next: true,
		Settings: settings.Defaults(), Now: base.Add(2 * time.Second),
	}); err != nil {
		t.Fatalf("user 8 serve: %v", err)
	}
	if n := f.viewCount(t, first); n != 1 {
		t.Fatalf("user 7's item count = %d, want 1", n)
	}
}

func TestTenantIsolation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)
	f.bindOutput(t, -2, 5)
	f.addItem(t, -1, "cats", "fp-1")
	other := f.addItem(t, -2, "cats", "fp-1")

	// Exhaust chat -1 twice over; chat -2's pool stays untouched.
	base := time.Now()
	for i := 0; i < 2; i++ {
		if _, err := f.engine.Serve(context.Background(), Request{
			ChatID: -1, UserID: 7, Category: "cats",
			Settings: settings.Defaults(),
			Now:      base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("serve %d: %v", i, err)
		}
	}
	if n := f.viewCount(t, other); n != 0 {
		t.Fatalf("other chat's counter moved: %d", n)
	}

	out, err := f.engine.Serve(context.Background(), Request{
		ChatID: -2, UserID: 7, Category: "cats",
		Settings: settings.Defaults(), Now: base.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("other chat serve: %v", err)
	}
	if out.Reset {
		t.Fatal("fresh pool in other chat reported a reset")
	}
}

func TestDeliveryFailureLeavesStateUntouched(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)
	id := f.addItem(t, -1, "cats", "fp-1")
	f.sink.failDeliver = true

	_, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats", Settings: settings.Defaults(),
	})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if n := f.viewCount(t, id); n != 0 {
		t.Fatalf("counter moved on failed delivery: %d", n)
	}
	if _, ok, _ := f.store.LastServe(context.Background(), 7); ok {
		t.Fatal("cooldown recorded on failed delivery")
	}
	// Item must still be eligible.
	if _, found, _ := f.store.PickRandom(context.Background(), -1, "cats", true); !found {
		t.Fatal("item marked served on failed delivery")
	}
}

func TestAntiRepeatOffSkipsMarking(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)
	f.addItem(t, -1, "cats", "fp-1")

	snap := settings.Defaults()
	snap.AntiRepeat = false

	base := time.Now()
	for i := 0; i < 3; i++ {
		out, err := f.engine.Serve(context.Background(), Request{
			ChatID: -1, UserID: 7, Category: "cats",
			Settings: snap,
			Now:      base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("serve %d: %v", i, err)
		}
		if out.Status != Delivered || out.Reset {
			t.Fatalf("serve %d: status=%v reset=%v", i, out.Status, out.Reset)
		}
	}
	if len(f.sink.notices) != 0 {
		t.Fatal("reset notice with anti-repeat off")
	}
}

func TestNextReplaceDeletesPreviousMenu(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.bindOutput(t, -1, 5)
	f.addItem(t, -1, "cats", "fp-1")
	f.addItem(t, -1, "cats", "fp-2")

	base := time.Now()
	out, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats",
		Settings: settings.Defaults(), Now: base,
	})
	if err != nil {
		t.Fatalf("first serve: %v", err)
	}

	if _, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats", Next: true,
		PrevMenu: out.SinkMsg,
		Settings: settings.Defaults(), Now: base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("next serve: %v", err)
	}
	if len(f.sink.deleted) != 1 || f.sink.deleted[0] != out.SinkMsg {
		t.Fatalf("deleted = %v, want exactly the previous menu %v", f.sink.deleted, out.SinkMsg)
	}

	// With replace off, nothing is deleted.
	snap := settings.Defaults()
	snap.NextReplace = false
	if _, err := f.engine.Serve(context.Background(), Request{
		ChatID: -1, UserID: 7, Category: "cats", Next: true,
		PrevMenu: out.SinkMsg,
		Settings: snap, Now: base.Add(2 * time.Minute),
	}); err != nil {
		t.Fatalf("replace-off serve: %v", err)
	}
	if len(f.sink.deleted) != 1 {
		t.Fatalf("deleted = %d refs, want still 1", len(f.sink.deleted))
	}
}
