package dispatch

import (
	"context"
	"time"

	"botkit/pkg/logx"
	kit "botkit/pkg/transport"
)

type HandlerFunc func(ctx context.Context, req *Request) error

// Command is a declared chat command.
type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	// Group names the Group declaration this command belongs to; group
	// metadata gates the command in addition to its own Meta.
	Group   string
	Meta    Meta
	Timeout time.Duration // optional per-command override
	Handle  HandlerFunc
}

// Group is a named declaration site shared by several commands or
// components; its metadata applies to all of them.
type Group struct {
	Name        string
	Description string
	Meta        Meta
}

// Request is what a handler receives: the event plus everything needed
// to reply.
type Request struct {
	Event  kit.Event
	Chat   kit.ChatTarget
	FromID int64

	Command     string // matched command name (message events)
	Args        []string
	ComponentID string // resolved component id (callback events)
	Payload     string // callback payload (raw string)
	CallbackID  string

	Adapter kit.Adapter
	Log     logx.Logger
}

// Reply sends text back to the originating chat.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.Adapter == nil {
		return nil
	}
	_, err := r.Adapter.SendText(ctx, r.Chat, text, nil)
	return err
}

// Ack answers the pending callback query, dismissing the client-side
// spinner. No-op for message events.
func (r *Request) Ack(ctx context.Context, text string) error {
	if r.Adapter == nil || r.CallbackID == "" {
		return nil
	}
	return r.Adapter.AnswerCallback(ctx, r.CallbackID, text)
}
