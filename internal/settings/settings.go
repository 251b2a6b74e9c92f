// Package settings reads and toggles the bot's global flags.
//
// Flags live in the settings table as strings. Serve requests load one
// Snapshot up front and never re-read mid-flight, so a concurrent admin
// toggle cannot produce a half-old, half-new flag combination inside one
// distribution transaction.
package settings

import (
	"context"
)

type DisplayMode string

const (
	// ModeForward re-sends the original message with the "forwarded from"
	// header, followed by a separate action-keyboard message.
	ModeForward DisplayMode = "forward"
	// ModeCopy re-sends the content as a fresh message with the action
	// keyboard (and optional origin deep link) attached directly.
	ModeCopy DisplayMode = "copy"
)

// Setting keys as stored.
const (
	KeyDisplayMode     = "display_mode"
	KeyAntiRepeat      = "anti_repeat"
	KeyJumpLink        = "jump_link"
	KeyDuplicateNotify = "duplicate_notify"
	KeyIngestBanner    = "ingest_banner"
	KeyNextReplace     = "next_replace"
)

// KV is the slice of the store the settings layer needs.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Snapshot is one consistent view of all flags.
type Snapshot struct {
	DisplayMode     DisplayMode
	AntiRepeat      bool
	JumpLink        bool
	DuplicateNotify bool
	IngestBanner    bool
	NextReplace     bool
}

// Defaults returns the flag values used when a key is absent.
func Defaults() Snapshot {
	return Snapshot{
		DisplayMode:     ModeCopy,
		AntiRepeat:      true,
		JumpLink:        true,
		DuplicateNotify: false,
		IngestBanner:    false,
		NextReplace:     true,
	}
}

// Load reads all flags, falling back to defaults for missing or
// unparseable values.
func Load(ctx context.Context, kv KV) (Snapshot, error) {
	snap := Defaults()

	if v, ok, err := kv.GetSetting(ctx, KeyDisplayMode); err != nil {
		return snap, err
	} else if ok {
		if m := DisplayMode(v); m == ModeForward || m == ModeCopy {
			snap.DisplayMode = m
		}
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{KeyAntiRepeat, &snap.AntiRepeat},
		{KeyJumpLink, &snap.JumpLink},
		{KeyDuplicateNotify, &snap.DuplicateNotify},
		{KeyIngestBanner, &snap.IngestBanner},
		{KeyNextReplace, &snap.NextReplace},
	}
	for _, b := range bools {
		v, ok, err := kv.GetSetting(ctx, b.key)
		if err != nil {
			return snap, err
		}
		if ok && (v == "true" || v == "false") {
			*b.dst = v == "true"
		}
	}
	return snap, nil
}

// ToggleBool flips a boolean flag and returns the new value.
func ToggleBool(ctx context.Context, kv KV, key string) (bool, error) {
	snap, err := Load(ctx, kv)
	if err != nil {
		return false, err
	}

	var cur bool
	switch key {
	case KeyAntiRepeat:
		cur = snap.AntiRepeat
	case KeyJumpLink:
		cur = snap.JumpLink
	case KeyDuplicateNotify:
		cur = snap.DuplicateNotify
	case KeyIngestBanner:
		cur = snap.IngestBanner
	case KeyNextReplace:
		cur = snap.NextReplace
	default:
		return false, errUnknownKey(key)
	}

	next := !cur
	if err := kv.SetSetting(ctx, key, boolStr(next)); err != nil {
		return cur, err
	}
	return next, nil
}

// ToggleDisplayMode flips between the two delivery styles and returns the
// new mode.
func ToggleDisplayMode(ctx context.Context, kv KV) (DisplayMode, error) {
	snap, err := Load(ctx, kv)
	if err != nil {
		return snap.DisplayMode, err
	}
	next := ModeForward
	if snap.DisplayMode == ModeForward {
		next = ModeCopy
	}
	if err := kv.SetSetting(ctx, KeyDisplayMode, string(next)); err != nil {
		return snap.DisplayMode, err
	}
	return next, nil
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

type errUnknownKey string

func (e errUnknownKey) Error() string { return "settings: unknown key " + string(e) }
