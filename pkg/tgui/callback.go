package tgui

import "strings"

// Data formats inline callback data as "section:action:payload".
// Payload is kept as-is (no escaping); keep it short, Telegram caps
// callback data at 64 bytes.
func Data(section, action, payload string) string {
	section = strings.TrimSpace(section)
	action = strings.TrimSpace(action)
	if payload == "" {
		return section + ":" + action
	}
	return section + ":" + action + ":" + payload
}

// Split parses "section:action:payload" back into its parts. Missing parts
// come back empty.
func Split(data string) (section, action, payload string) {
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 3:
		return parts[0], parts[1], parts[2]
	case 2:
		return parts[0], parts[1], ""
	case 1:
		return parts[0], "", ""
	default:
		return "", "", ""
	}
}
