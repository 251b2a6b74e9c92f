// Package storage is the sqlite persistence layer for the bot.
//
// It owns:
//   - Topic/category bindings per group (including the "output" sink)
//   - The media catalog (fingerprint-deduped, with view counters)
//   - Served markers (the anti-repeat set)
//   - Per-user last-served rows (abuse cooldown)
//   - Favorites
//   - Global settings
//
// Every query that touches group-owned data takes the owning chat id and
// scopes on it; media ids are only meaningful inside their owning group.
package storage
