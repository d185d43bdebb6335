package dispatch

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"botkit/pkg/eventbus"
	"botkit/pkg/logx"
	"botkit/pkg/storage"
	kit "botkit/pkg/transport"
)

// Dispatcher resolves inbound events to handlers and invokes them with
// scope gating. One instance per bot; construct with New and feed it
// events via Run or Dispatch.
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]*Command
	alias    map[string]string // alias -> command name
	groups   map[string]Group

	reg     *Registry
	adapter kit.Adapter
	log     logx.Logger
	bus     eventbus.Bus
	rec     storage.Recorder
	lookup  MetaLookup
}

// DispatchEvent is the payload published on dispatch.* topics.
type DispatchEvent struct {
	Kind   string // "command" or "component"
	Name   string
	ChatID int64
	FromID int64
	Error  string
}

type Option func(*Dispatcher)

func WithBus(bus eventbus.Bus) Option {
	return func(d *Dispatcher) { d.bus = bus }
}

func WithRecorder(rec storage.Recorder) Option {
	return func(d *Dispatcher) { d.rec = rec }
}

// WithGroupLookup replaces the default group-metadata lookup (the
// groups passed to SetCommands).
func WithGroupLookup(fn MetaLookup) Option {
	return func(d *Dispatcher) { d.lookup = fn }
}

func New(reg *Registry, adapter kit.Adapter, log logx.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		commands: map[string]*Command{},
		alias:    map[string]string{},
		groups:   map[string]Group{},
		reg:      reg,
		adapter:  adapter,
		log:      log,
	}
	for _, o := range opts {
		o(d)
	}
	if d.lookup == nil {
		d.lookup = d.groupMeta
	}
	return d
}

// Registry returns the component handler registry.
func (d *Dispatcher) Registry() *Registry { return d.reg }

// SetCommands replaces the command table. A help command is always
// injected.
func (d *Dispatcher) SetCommands(cmds []Command, groups []Group) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show available commands",
		Usage:       "/help [cmd]",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, d.helpText(req.Args))
		},
	})

	table := map[string]*Command{}
	alias := map[string]string{}
	for i := range cmds {
		c := cmds[i]
		name := strings.TrimSpace(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		table[name] = &c
		for _, a := range c.Aliases {
			a = strings.TrimSpace(a)
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			alias[a] = name
		}
	}

	gm := map[string]Group{}
	for _, g := range groups {
		if strings.TrimSpace(g.Name) == "" {
			continue
		}
		gm[g.Name] = g
	}

	d.mu.Lock()
	d.commands = table
	d.alias = alias
	d.groups = gm
	d.mu.Unlock()
}

// Run consumes events until ctx is cancelled or the channel closes.
// Each event is handled synchronously on this goroutine; handlers that
// need background work hand off to the scheduler themselves. Dispatch
// errors are reported and never end the loop.
func (d *Dispatcher) Run(ctx context.Context, events <-chan kit.Event) error {
	d.log.Info("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopped", logx.Err(ctx.Err()))
			return nil
		case ev, ok := <-events:
			if !ok {
				d.log.Info("dispatcher stopped (event channel closed)")
				return nil
			}
			_ = d.Dispatch(ctx, ev)
		}
	}
}

// Dispatch routes one event. The returned error describes the outcome
// (ErrHandlerNotFound, ErrScopeViolation, or the handler's own error);
// it is already reported and is returned for the caller's information
// only; nothing is fatal.
func (d *Dispatcher) Dispatch(ctx context.Context, ev kit.Event) error {
	switch ev.Kind {
	case kit.EventMessage:
		return d.dispatchMessage(ctx, ev)
	case kit.EventCallback:
		return d.dispatchCallback(ctx, ev)
	}
	return nil
}

func (d *Dispatcher) dispatchMessage(ctx context.Context, ev kit.Event) error {
	msg := ev.Message
	if msg == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	args := parts[1:]

	d.mu.RLock()
	if target, ok := d.alias[word]; ok {
		word = target
	}
	cmd, ok := d.commands[word]
	d.mu.RUnlock()

	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	if !ok {
		_, _ = d.adapter.SendText(ctx, chat, "unknown command. try /help", nil)
		err := fmt.Errorf("%w: /%s", ErrHandlerNotFound, word)
		d.report("command", word, msg.ChatID, msg.FromID, err)
		return err
	}

	if d.isGroupOnly(cmd.Meta, cmd.Group) && !ev.IsGroup() {
		_, _ = d.adapter.SendText(ctx, chat, "this command only works in group chats", nil)
		err := fmt.Errorf("%w: /%s", ErrScopeViolation, cmd.Name)
		d.report("command", cmd.Name, msg.ChatID, msg.FromID, err)
		return err
	}

	req := &Request{
		Event:   ev,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    args,
		Adapter: d.adapter,
		Log: d.log.With(
			logx.String("rid", newReqID()),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	err := d.invoke(ctx, cmd.Handle, cmd.Timeout, req)
	d.report("command", cmd.Name, msg.ChatID, msg.FromID, err)
	return err
}

func (d *Dispatcher) dispatchCallback(ctx context.Context, ev kit.Event) error {
	cb := ev.Callback
	if cb == nil {
		return nil
	}
	id, payload := SplitComponentData(cb.Data)
	if id == "" {
		return nil
	}

	entry, ok := d.reg.Resolve(id)
	if !ok {
		// Component expired, stale id from a previous run, or typo:
		// normal outcome, tell the user and move on.
		_ = d.adapter.AnswerCallback(ctx, cb.ID, "this interaction is no longer available")
		err := fmt.Errorf("%w: component %q", ErrHandlerNotFound, id)
		d.report("component", id, cb.ChatID, cb.FromID, err)
		return err
	}

	if d.isGroupOnly(entry.Meta, entry.Group) && !ev.IsGroup() {
		_ = d.adapter.AnswerCallback(ctx, cb.ID, "only available in group chats")
		err := fmt.Errorf("%w: component %q", ErrScopeViolation, id)
		d.report("component", id, cb.ChatID, cb.FromID, err)
		return err
	}

	req := &Request{
		Event:       ev,
		Chat:        kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:      cb.FromID,
		ComponentID: id,
		Payload:     payload,
		CallbackID:  cb.ID,
		Adapter:     d.adapter,
		Log: d.log.With(
			logx.String("rid", newReqID()),
			logx.Int64("chat_id", cb.ChatID),
			logx.Int64("from_id", cb.FromID),
			logx.String("cmd", "cb:"+id),
		),
	}
	err := d.invoke(ctx, entry.Handle, 0, req)
	d.report("component", id, cb.ChatID, cb.FromID, err)
	return err
}

// invoke runs the handler synchronously with the standard middleware
// stack. Panics become errors here and never reach the event loop.
func (d *Dispatcher) invoke(ctx context.Context, h HandlerFunc, timeout time.Duration, req *Request) error {
	final := Chain(
		h,
		MWPanicRecover(d.log),
		MWRequestLog(d.log),
		MWTimeout(timeout),
	)
	return final(ctx, req)
}

// isGroupOnly ORs the handler-level flag with its group's.
func (d *Dispatcher) isGroupOnly(m Meta, group string) bool {
	if GroupOnly(m) {
		return true
	}
	if group == "" {
		return false
	}
	gm, ok := d.lookup(group)
	return ok && GroupOnly(gm)
}

func (d *Dispatcher) groupMeta(name string) (Meta, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	g, ok := d.groups[name]
	return g.Meta, ok
}

func (d *Dispatcher) report(kind, name string, chatID, fromID int64, err error) {
	topic := eventbus.TopicDispatchOK
	dev := DispatchEvent{Kind: kind, Name: name, ChatID: chatID, FromID: fromID}
	if err != nil {
		topic = eventbus.TopicDispatchFail
		dev.Error = err.Error()
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Topic: topic, Data: dev})
	}
	if d.rec != nil {
		rec := storage.Record{
			At: time.Now(), Kind: "dispatch", Name: name,
			ChatID: chatID, FromID: fromID, OK: err == nil, Error: dev.Error,
		}
		wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if werr := d.rec.Append(wctx, rec); werr != nil && werr != storage.ErrDisabled {
			d.log.Debug("dispatch record write failed", logx.Err(werr))
		}
		cancel()
	}
}

func (d *Dispatcher) helpText(args []string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if len(args) > 0 {
		name := strings.TrimPrefix(args[0], "/")
		if target, ok := d.alias[name]; ok {
			name = target
		}
		if c, ok := d.commands[name]; ok {
			var b strings.Builder
			fmt.Fprintf(&b, "/%s - %s\n", c.Name, c.Description)
			if c.Usage != "" {
				fmt.Fprintf(&b, "usage: %s\n", c.Usage)
			}
			if len(c.Aliases) > 0 {
				fmt.Fprintf(&b, "aliases: %s\n", strings.Join(c.Aliases, ", "))
			}
			return b.String()
		}
		return fmt.Sprintf("unknown command %q", name)
	}

	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("commands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "/%s - %s\n", name, d.commands[name].Description)
	}
	return b.String()
}

// SplitComponentData splits callback data "ns:action:payload" into the
// component identifier ("ns:action") and its payload. Data without a
// second separator has no payload; a single token is the identifier
// itself.
func SplitComponentData(data string) (id, payload string) {
	data = strings.TrimSpace(data)
	parts := strings.SplitN(data, ":", 3)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	case 2:
		return parts[0] + ":" + parts[1], ""
	default:
		return parts[0] + ":" + parts[1], parts[2]
	}
}

func newReqID() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
