package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

// Update is the tagged inbound event decoded once at the adapter boundary.
type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type MediaKind string

const (
	MediaNone      MediaKind = ""
	MediaPhoto     MediaKind = "photo"
	MediaVideo     MediaKind = "video"
	MediaDocument  MediaKind = "document"
	MediaAnimation MediaKind = "animation"
)

type Message struct {
	ID           int
	ChatID       int64
	ChatTitle    string
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool

	// Media attachment, if any. Fingerprint is Telegram's file_unique_id,
	// which is stable for the same underlying file across chats.
	Media       MediaKind
	Fingerprint string
	Caption     string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode          string
	DisablePreview     bool
	ReplyMarkupAdapter any // adapter-specific markup (Telegram: *telebot.ReplyMarkup)
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string, alert bool) error

	// Forward re-sends origin into to with a "forwarded from" header.
	Forward(ctx context.Context, to ChatTarget, origin MessageRef) (MessageRef, error)
	// Copy re-sends origin into to without the forward header; markup is attached to the copy.
	Copy(ctx context.Context, to ChatTarget, origin MessageRef, opt *SendOptions) (MessageRef, error)
	// Delete removes a previously sent message. Callers treat failures as best-effort.
	Delete(ctx context.Context, ref MessageRef) error
}

// AdminChecker is implemented by adapters that can resolve chat membership roles.
type AdminChecker interface {
	IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}
