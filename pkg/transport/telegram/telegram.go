// Package telegram adapts gopkg.in/telebot.v4 to the framework's
// transport contract.
package telegram

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"botkit/pkg/logx"
	kit "botkit/pkg/transport"
)

type Config struct {
	Token       string
	PollTimeout time.Duration // long-poll timeout, default 10s
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Event)

	runMu   sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// droppedEvents counts inbound events dropped because the consumer
	// was slower than the poll loop. Logged periodically, not per event.
	droppedEvents uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Initialize atomic.Value with a stable dynamic type.
	var nilOut chan<- kit.Event
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the CURRENT output channel; Start may swap it.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.deliver(kit.Event{
			Kind: kit.EventMessage,
			Message: &kit.Message{
				ID:           m.ID,
				ChatID:       m.Chat.ID,
				ThreadID:     m.ThreadID,
				FromID:       m.Sender.ID,
				FromUsername: m.Sender.Username,
				Text:         m.Text,
				IsGroup:      isGroupChat(m.Chat),
			},
		})
		return nil
	})

	a.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		cb := c.Callback()
		m := c.Message()
		if cb == nil || m == nil {
			return nil
		}
		a.deliver(kit.Event{
			Kind: kit.EventCallback,
			Callback: &kit.Callback{
				ID:        cb.ID,
				FromID:    cb.Sender.ID,
				ChatID:    m.Chat.ID,
				ThreadID:  m.ThreadID,
				MessageID: m.ID,
				Data:      strings.TrimPrefix(cb.Data, "\f"),
				IsGroup:   isGroupChat(m.Chat),
			},
		})
		return nil
	})
}

func isGroupChat(c *tele.Chat) bool {
	return c != nil && c.Type != tele.ChatPrivate
}

func (a *Adapter) deliver(ev kit.Event) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Event)
	if out == nil {
		return
	}
	select {
	case out <- ev:
	default:
		atomic.AddUint64(&a.droppedEvents, 1)
	}
}

// Start begins long polling and forwards inbound events to out. It
// returns immediately; polling runs until Stop or ctx cancellation.
func (a *Adapter) Start(ctx context.Context, out chan<- kit.Event) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(out)

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Periodic summary for dropped events (avoid noisy per-event logs).
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		report := func() {
			if n := atomic.SwapUint64(&a.droppedEvents, 0); n > 0 {
				a.log.Warn("inbound events dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-runCtx.Done():
				report()
				return
			case <-ticker.C:
				report()
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		<-runCtx.Done()
		a.bot.Stop()
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("telegram adapter started", logx.String("bot", a.bot.Me.Username))
		a.bot.Start()
	}()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.running = false
	a.runMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	msg, err := a.bot.Send(tele.ChatID(to.ChatID), text, sendOptions(to.ThreadID, opt))
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

func (a *Adapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	stored := tele.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
	_, err := a.bot.Edit(stored, text, sendOptions(ref.ThreadID, opt))
	return err
}

func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	if callbackID == "" {
		return nil
	}
	return a.bot.Respond(&tele.Callback{ID: callbackID}, &tele.CallbackResponse{Text: text})
}

func sendOptions(threadID int, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: threadID}
	if opt == nil {
		return so
	}
	so.ParseMode = opt.ParseMode
	so.DisableWebPagePreview = opt.DisablePreview
	if rm, ok := opt.ReplyMarkup.(*tele.ReplyMarkup); ok {
		so.ReplyMarkup = rm
	}
	return so
}
