package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	logx "rollbot/pkg/logx"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustInsert(t *testing.T, s *Store, chatID int64, category, fingerprint string) int64 {
	t.Helper()
	id, err := s.InsertMedia(context.Background(), Item{
		ChatID:      chatID,
		MessageID:   int(chatID % 1000),
		Category:    category,
		Fingerprint: fingerprint,
	})
	if err != nil {
		t.Fatalf("InsertMedia: %v", err)
	}
	return id
}

func TestIngestDedupePerChat(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	first := mustInsert(t, s, -100, "cats", "fp-1")

	_, err := s.InsertMedia(ctx, Item{ChatID: -100, MessageID: 2, Category: "cats", Fingerprint: "fp-1"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Same fingerprint in another chat is an independent item.
	other := mustInsert(t, s, -200, "cats", "fp-1")
	if other == first {
		t.Fatalf("cross-chat insert reused id %d", first)
	}

	if n, err := s.CountMedia(ctx, -100, "cats"); err != nil || n != 1 {
		t.Fatalf("CountMedia(-100) = %d, %v; want 1", n, err)
	}
	if n, err := s.CountMedia(ctx, -200, "cats"); err != nil || n != 1 {
		t.Fatalf("CountMedia(-200) = %d, %v; want 1", n, err)
	}
}

func TestBumpViewClampsAtZero(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, -1, "cats", "fp-a")
	if err := s.BumpView(ctx, id, -1); err != nil {
		t.Fatalf("BumpView: %v", err)
	}
	it, ok, err := s.GetMedia(ctx, id)
	if err != nil || !ok {
		t.Fatalf("GetMedia: %v ok=%v", err, ok)
	}
	if it.ViewCount != 0 {
		t.Fatalf("ViewCount = %d, want 0", it.ViewCount)
	}

	if err := s.BumpView(ctx, id, +1); err != nil {
		t.Fatalf("BumpView: %v", err)
	}
	if err := s.BumpView(ctx, id, -1); err != nil {
		t.Fatalf("BumpView: %v", err)
	}
	if err := s.BumpView(ctx, id, -1); err != nil {
		t.Fatalf("BumpView: %v", err)
	}
	it, _, _ = s.GetMedia(ctx, id)
	if it.ViewCount != 0 {
		t.Fatalf("ViewCount after extra decrement = %d, want 0", it.ViewCount)
	}
}

func TestPickRandomExcludesServed(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	a := mustInsert(t, s, -1, "cats", "fp-a")
	b := mustInsert(t, s, -1, "cats", "fp-b")

	if err := s.MarkServed(ctx, a); err != nil {
		t.Fatalf("MarkServed: %v", err)
	}
	for i := 0; i < 10; i++ {
		it, found, err := s.PickRandom(ctx, -1, "cats", true)
		if err != nil || !found {
			t.Fatalf("PickRandom: %v found=%v", err, found)
		}
		if it.ID != b {
			t.Fatalf("picked served item %d", it.ID)
		}
	}

	if err := s.MarkServed(ctx, b); err != nil {
		t.Fatalf("MarkServed: %v", err)
	}
	if _, found, err := s.PickRandom(ctx, -1, "cats", true); err != nil || found {
		t.Fatalf("expected empty fresh pool, found=%v err=%v", found, err)
	}
	// Without exclusion the full pool is still there.
	if _, found, err := s.PickRandom(ctx, -1, "cats", false); err != nil || !found {
		t.Fatalf("expected pick from full pool, found=%v err=%v", found, err)
	}
}

func TestResetServedScoped(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	catsA := mustInsert(t, s, -1, "cats", "fp-1")
	dogsA := mustInsert(t, s, -1, "dogs", "fp-2")
	catsB := mustInsert(t, s, -2, "cats", "fp-3")
	for _, id := range []int64{catsA, dogsA, catsB} {
		if err := s.MarkServed(ctx, id); err != nil {
			t.Fatalf("MarkServed(%d): %v", id, err)
		}
	}

	n, err := s.ResetServed(ctx, -1, "cats")
	if err != nil {
		t.Fatalf("ResetServed: %v", err)
	}
	if n != 1 {
		t.Fatalf("cleared %d markers, want 1", n)
	}

	// Same chat, other category: still served.
	if _, found, _ := s.PickRandom(ctx, -1, "dogs", true); found {
		t.Fatal("dogs marker was cleared by cats reset")
	}
	// Other chat, same category name: still served.
	if _, found, _ := s.PickRandom(ctx, -2, "cats", true); found {
		t.Fatal("other chat's marker was cleared")
	}
	// The reset pool is eligible again.
	if _, found, _ := s.PickRandom(ctx, -1, "cats", true); !found {
		t.Fatal("reset pool still excluded")
	}
}

func TestFavoritesLifecycle(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	a := mustInsert(t, s, -1, "cats", "fp-a")
	b := mustInsert(t, s, -1, "cats", "fp-b")

	if err := s.AddFavorite(ctx, 7, a); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}
	if err := s.AddFavorite(ctx, 7, a); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("second add: got %v, want ErrDuplicate", err)
	}
	if err := s.AddFavorite(ctx, 7, b); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}

	items, total, err := s.ListFavorites(ctx, 7, 10, 0)
	if err != nil {
		t.Fatalf("ListFavorites: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("total=%d len=%d, want 2/2", total, len(items))
	}
	// Most recent first; equal timestamps fall back to id desc.
	if items[0].ID != b {
		t.Fatalf("first item = %d, want most recent %d", items[0].ID, b)
	}

	// Removing twice is fine.
	if err := s.RemoveFavorite(ctx, 7, a); err != nil {
		t.Fatalf("RemoveFavorite: %v", err)
	}
	if err := s.RemoveFavorite(ctx, 7, a); err != nil {
		t.Fatalf("RemoveFavorite again: %v", err)
	}
	if _, total, _ := s.ListFavorites(ctx, 7, 10, 0); total != 1 {
		t.Fatalf("total after remove = %d, want 1", total)
	}
}

func TestCooldownRecordOverwrites(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	t0 := time.Now().Truncate(time.Millisecond)
	if err := s.RecordServe(ctx, 9, 100, t0); err != nil {
		t.Fatalf("RecordServe: %v", err)
	}
	if err := s.RecordServe(ctx, 9, 200, t0.Add(5*time.Second)); err != nil {
		t.Fatalf("RecordServe: %v", err)
	}

	ls, ok, err := s.LastServe(ctx, 9)
	if err != nil || !ok {
		t.Fatalf("LastServe: %v ok=%v", err, ok)
	}
	if ls.MediaID != 200 {
		t.Fatalf("MediaID = %d, want 200", ls.MediaID)
	}
	if !ls.At.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("At = %v, want %v", ls.At, t0.Add(5*time.Second))
	}

	if _, ok, err := s.LastServe(ctx, 12345); err != nil || ok {
		t.Fatalf("unknown user: ok=%v err=%v", ok, err)
	}
}

func TestBindingResolution(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	add := func(chatID int64, topic int, category string) int64 {
		t.Helper()
		id, err := s.AddBinding(ctx, Binding{ChatID: chatID, TopicID: topic, Category: category})
		if err != nil {
			t.Fatalf("AddBinding: %v", err)
		}
		return id
	}

	add(-1, 10, "cats")
	add(-1, 0, "misc") // whole-group fallback
	add(-1, 20, OutputCategory)
	add(-1, 30, OutputCategory) // duplicate sink row; first one wins

	if c, ok, err := s.ResolveCategory(ctx, -1, 10); err != nil || !ok || c != "cats" {
		t.Fatalf("ResolveCategory(topic 10) = %q ok=%v err=%v", c, ok, err)
	}
	// Unbound topic falls back to the whole-group binding.
	if c, ok, _ := s.ResolveCategory(ctx, -1, 99); !ok || c != "misc" {
		t.Fatalf("ResolveCategory(topic 99) = %q ok=%v", c, ok)
	}
	// The output binding never resolves as a source category.
	if c, ok, _ := s.ResolveCategory(ctx, -1, 20); !ok || c != "misc" {
		t.Fatalf("ResolveCategory(output topic) = %q ok=%v", c, ok)
	}

	topic, ok, err := s.ResolveOutput(ctx, -1)
	if err != nil || !ok || topic != 20 {
		t.Fatalf("ResolveOutput = %d ok=%v err=%v; want 20", topic, ok, err)
	}
	if _, ok, _ := s.ResolveOutput(ctx, -2); ok {
		t.Fatal("ResolveOutput for unbound chat reported ok")
	}

	cats, err := s.Categories(ctx, -1)
	if err != nil {
		t.Fatalf("Categories: %v", err)
	}
	if len(cats) != 2 || cats[0] != "cats" || cats[1] != "misc" {
		t.Fatalf("Categories = %v", cats)
	}
}

func TestWipeChat(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	mine := mustInsert(t, s, -1, "cats", "fp-1")
	theirs := mustInsert(t, s, -2, "cats", "fp-2")
	if _, err := s.AddBinding(ctx, Binding{ChatID: -1, TopicID: 1, Category: "cats"}); err != nil {
		t.Fatalf("AddBinding: %v", err)
	}
	if err := s.MarkServed(ctx, mine); err != nil {
		t.Fatalf("MarkServed: %v", err)
	}
	if err := s.AddFavorite(ctx, 7, mine); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}
	if err := s.AddFavorite(ctx, 7, theirs); err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}

	if err := s.WipeChat(ctx, -1); err != nil {
		t.Fatalf("WipeChat: %v", err)
	}

	if n, _ := s.CountMedia(ctx, -1, "cats"); n != 0 {
		t.Fatalf("media left after wipe: %d", n)
	}
	if _, ok, _ := s.GetMedia(ctx, theirs); !ok {
		t.Fatal("other chat's media vanished")
	}
	if _, total, _ := s.ListFavorites(ctx, 7, 10, 0); total != 1 {
		t.Fatalf("favorites after wipe = %d, want 1 (other chat's)", total)
	}
	bindings, _ := s.ListBindings(ctx, -1)
	if len(bindings) != 0 {
		t.Fatalf("bindings left after wipe: %d", len(bindings))
	}
}

func TestMaintenancePrunes(t *testing.T) {
	t.Parallel()
	s := newStore(t)
	ctx := context.Background()

	id := mustInsert(t, s, -1, "cats", "fp-1")
	if err := s.MarkServed(ctx, id); err != nil {
		t.Fatalf("MarkServed: %v", err)
	}
	if err := s.MarkServed(ctx, 9999); err != nil { // orphan
		t.Fatalf("MarkServed orphan: %v", err)
	}
	n, err := s.PruneOrphanServed(ctx)
	if err != nil || n != 1 {
		t.Fatalf("PruneOrphanServed = %d, %v; want 1", n, err)
	}

	now := time.Now()
	if err := s.RecordServe(ctx, 1, id, now.Add(-48*time.Hour)); err != nil {
		t.Fatalf("RecordServe: %v", err)
	}
	if err := s.RecordServe(ctx, 2, id, now); err != nil {
		t.Fatalf("RecordServe: %v", err)
	}
	n, err = s.PruneLastServed(ctx, now.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("PruneLastServed = %d, %v; want 1", n, err)
	}
	if _, ok, _ := s.LastServe(ctx, 2); !ok {
		t.Fatal("fresh cooldown row was pruned")
	}
}
