package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"botkit/pkg/logx"
	kit "botkit/pkg/transport"
)

// fakeAdapter records outbound calls for assertions.
type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	answers []string
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Event) error { return nil }

func (f *fakeAdapter) Stop(ctx context.Context) error { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error {
	f.mu.Lock()
	f.answers = append(f.answers, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeAdapter) answerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.answers)
}

func msgEvent(text string, group bool) kit.Event {
	return kit.Event{Kind: kit.EventMessage, Message: &kit.Message{
		ID: 1, ChatID: 100, FromID: 200, Text: text, IsGroup: group,
	}}
}

func cbEvent(data string, group bool) kit.Event {
	return kit.Event{Kind: kit.EventCallback, Callback: &kit.Callback{
		ID: "cb-1", ChatID: 100, FromID: 200, Data: data, IsGroup: group,
	}}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeAdapter) {
	t.Helper()
	fa := &fakeAdapter{}
	return New(NewRegistry(), fa, logx.Nop()), fa
}

func TestDispatchCommandInvokesHandler(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	var calls int
	var gotArgs []string
	d.SetCommands([]Command{{
		Name: "echo",
		Handle: func(ctx context.Context, req *Request) error {
			calls++
			gotArgs = req.Args
			return nil
		},
	}}, nil)

	if err := d.Dispatch(context.Background(), msgEvent("/echo hello world", false)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
	if len(gotArgs) != 2 || gotArgs[0] != "hello" || gotArgs[1] != "world" {
		t.Fatalf("args = %v, want [hello world]", gotArgs)
	}
}

func TestDispatchCommandAliasAndBotSuffix(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	var calls int
	d.SetCommands([]Command{{
		Name:    "status",
		Aliases: []string{"st"},
		Handle: func(ctx context.Context, req *Request) error {
			calls++
			return nil
		},
	}}, nil)

	for _, text := range []string{"/st", "/status@somebot", "/st@somebot now"} {
		if err := d.Dispatch(context.Background(), msgEvent(text, false)); err != nil {
			t.Fatalf("Dispatch(%q): %v", text, err)
		}
	}
	if calls != 3 {
		t.Fatalf("handler ran %d times, want 3", calls)
	}
}

func TestDispatchUnknownCommand(t *testing.T) {
	t.Parallel()
	d, fa := newTestDispatcher(t)
	d.SetCommands(nil, nil)

	err := d.Dispatch(context.Background(), msgEvent("/nosuch", false))
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("err = %v, want ErrHandlerNotFound", err)
	}
	if fa.sentCount() != 1 {
		t.Fatalf("sent %d messages, want 1 fallback reply", fa.sentCount())
	}
}

func TestDispatchNonCommandTextIgnored(t *testing.T) {
	t.Parallel()
	d, fa := newTestDispatcher(t)
	d.SetCommands(nil, nil)

	if err := d.Dispatch(context.Background(), msgEvent("just chatting", false)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fa.sentCount() != 0 {
		t.Fatalf("plain text produced %d replies, want 0", fa.sentCount())
	}
}

func TestGroupOnlyCommandRejectedInPrivate(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	var calls int
	d.SetCommands([]Command{{
		Name: "purge",
		Meta: Meta{GroupOnly: true},
		Handle: func(ctx context.Context, req *Request) error {
			calls++
			return nil
		},
	}}, nil)

	err := d.Dispatch(context.Background(), msgEvent("/purge", false))
	if !errors.Is(err, ErrScopeViolation) {
		t.Fatalf("private chat err = %v, want ErrScopeViolation", err)
	}
	if calls != 0 {
		t.Fatalf("handler ran despite scope violation")
	}

	if err := d.Dispatch(context.Background(), msgEvent("/purge", true)); err != nil {
		t.Fatalf("group chat: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times in group chat, want 1", calls)
	}
}

func TestGroupMetadataGatesMembers(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	// The command itself carries no flag; its enclosing group does.
	var calls int
	d.SetCommands(
		[]Command{{
			Name:  "kick",
			Group: "moderation",
			Handle: func(ctx context.Context, req *Request) error {
				calls++
				return nil
			},
		}},
		[]Group{{Name: "moderation", Meta: Meta{GroupOnly: true}}},
	)

	if err := d.Dispatch(context.Background(), msgEvent("/kick", false)); !errors.Is(err, ErrScopeViolation) {
		t.Fatalf("err = %v, want ErrScopeViolation via group metadata", err)
	}
	if err := d.Dispatch(context.Background(), msgEvent("/kick", true)); err != nil {
		t.Fatalf("group chat: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times, want 1", calls)
	}
}

func TestDispatchCallbackResolvesPayload(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	var gotPayload string
	d.Registry().RegisterFunc("vote:cast", func(ctx context.Context, req *Request) error {
		gotPayload = req.Payload
		return nil
	})

	if err := d.Dispatch(context.Background(), cbEvent("vote:cast:option-3", false)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if gotPayload != "option-3" {
		t.Fatalf("payload = %q, want %q", gotPayload, "option-3")
	}
}

func TestDispatchCallbackUnknownComponent(t *testing.T) {
	t.Parallel()
	d, fa := newTestDispatcher(t)

	err := d.Dispatch(context.Background(), cbEvent("gone:button", false))
	if !errors.Is(err, ErrHandlerNotFound) {
		t.Fatalf("err = %v, want ErrHandlerNotFound", err)
	}
	if fa.answerCount() != 1 {
		t.Fatalf("answered %d callbacks, want 1", fa.answerCount())
	}
}

func TestDispatchCallbackScopeViolation(t *testing.T) {
	t.Parallel()
	d, fa := newTestDispatcher(t)

	var calls int
	d.Registry().Register(Entry{
		ID:   "admin:wipe",
		Meta: Meta{GroupOnly: true},
		Handle: func(ctx context.Context, req *Request) error {
			calls++
			return nil
		},
	})

	err := d.Dispatch(context.Background(), cbEvent("admin:wipe", false))
	if !errors.Is(err, ErrScopeViolation) {
		t.Fatalf("err = %v, want ErrScopeViolation", err)
	}
	if calls != 0 {
		t.Fatalf("handler ran despite scope violation")
	}
	if fa.answerCount() != 1 {
		t.Fatalf("answered %d callbacks, want 1", fa.answerCount())
	}

	if err := d.Dispatch(context.Background(), cbEvent("admin:wipe", true)); err != nil {
		t.Fatalf("group chat: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times in group chat, want 1", calls)
	}
}

func TestHandlerPanicBecomesError(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	d.SetCommands([]Command{{
		Name: "boom",
		Handle: func(ctx context.Context, req *Request) error {
			panic("kaput")
		},
	}}, nil)

	err := d.Dispatch(context.Background(), msgEvent("/boom", false))
	if err == nil {
		t.Fatalf("panic was swallowed, want error")
	}

	// The loop survives: a later dispatch still works.
	var ok bool
	d.SetCommands([]Command{{
		Name: "fine",
		Handle: func(ctx context.Context, req *Request) error {
			ok = true
			return nil
		},
	}}, nil)
	if err := d.Dispatch(context.Background(), msgEvent("/fine", false)); err != nil {
		t.Fatalf("Dispatch after panic: %v", err)
	}
	if !ok {
		t.Fatalf("handler after panic did not run")
	}
}

func TestCommandTimeout(t *testing.T) {
	t.Parallel()
	d, _ := newTestDispatcher(t)

	d.SetCommands([]Command{{
		Name:    "slow",
		Timeout: 30 * time.Millisecond,
		Handle: func(ctx context.Context, req *Request) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
				return nil
			}
		},
	}}, nil)

	start := time.Now()
	err := d.Dispatch(context.Background(), msgEvent("/slow", false))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout did not bound the handler")
	}
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	d, fa := newTestDispatcher(t)
	d.SetCommands([]Command{{
		Name:        "ping",
		Description: "round trip check",
		Handle:      noopHandler,
	}}, nil)

	if err := d.Dispatch(context.Background(), msgEvent("/help", false)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if fa.sentCount() != 1 {
		t.Fatalf("help produced %d replies, want 1", fa.sentCount())
	}
}

func TestSplitComponentData(t *testing.T) {
	t.Parallel()
	tests := []struct {
		data, id, payload string
	}{
		{"menu:open", "menu:open", ""},
		{"menu:open:page=2", "menu:open", "page=2"},
		{"vote:cast:a:b:c", "vote:cast", "a:b:c"},
		{"solo", "solo", ""},
		{"", "", ""},
		{"  menu:open  ", "menu:open", ""},
	}
	for _, tt := range tests {
		id, payload := SplitComponentData(tt.data)
		if id != tt.id || payload != tt.payload {
			t.Errorf("SplitComponentData(%q) = (%q, %q), want (%q, %q)",
				tt.data, id, payload, tt.id, tt.payload)
		}
	}
}
