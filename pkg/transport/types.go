package transport

import "context"

type EventKind string

const (
	EventMessage  EventKind = "message"
	EventCallback EventKind = "callback"
)

// Event is a platform-neutral inbound interaction delivered by an Adapter.
// Exactly one of Message/Callback is set, matching Kind.
type Event struct {
	Kind     EventKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	ThreadID  int
	MessageID int
	Data      string
	IsGroup   bool
}

// IsGroup reports whether the event originated in a group chat
// (as opposed to a private one-on-one chat).
func (e Event) IsGroup() bool {
	switch {
	case e.Message != nil:
		return e.Message.IsGroup
	case e.Callback != nil:
		return e.Callback.IsGroup
	}
	return false
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
	ParseMode      string
	DisablePreview bool
	// ReplyMarkup is adapter-specific markup (Telegram: *telebot.ReplyMarkup).
	ReplyMarkup any
}

// Adapter is the boundary to a chat platform. Start feeds inbound events
// into out until ctx is cancelled or Stop is called; delivery must never
// block the platform poll loop (slow consumers drop).
type Adapter interface {
	Start(ctx context.Context, out chan<- Event) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	EditText(ctx context.Context, ref MessageRef, text string, opt *SendOptions) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}
