package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	kit "botkit/pkg/transport"
)

// AttachChat installs the operator-chat sink, forwarding records at or
// above Chat.MinLevel to the configured chat through sender. Call once
// after the transport adapter exists; Apply picks the sink up on the
// next call.
func (s *Service) AttachChat(sender kit.Adapter) {
	s.mu.Lock()
	cfg := s.cfg
	if s.chat == nil {
		s.chat = newChatSink(sender)
	}
	s.mu.Unlock()

	s.Apply(cfg)
}

// chatSink is a zerolog LevelWriter that forwards formatted log lines to
// an operator chat. Sends are queued and rate limited; the sink never
// blocks logging and drops on overload.
type chatSink struct {
	sender kit.Adapter

	mu       sync.Mutex
	target   kit.ChatTarget
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan chatItem
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type chatItem struct {
	to  kit.ChatTarget
	msg string
}

func newChatSink(sender kit.Adapter) *chatSink {
	return &chatSink{
		sender: sender,
		queue:  make(chan chatItem, 256),
	}
}

func (c *chatSink) apply(cfg ChatConfig) {
	c.mu.Lock()
	c.target = kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	rps := cfg.RatePerSec
	if rps < 1 {
		rps = 1
	}
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	c.mu.Unlock()

	if cfg.Enabled {
		c.once.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			c.cancel = cancel
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.worker(ctx)
			}()
		})
	}
}

func (c *chatSink) close() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-c.queue:
			if c.sender == nil {
				continue
			}
			_, _ = c.sender.SendText(ctx, it.to, it.msg, &kit.SendOptions{DisablePreview: true})
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	to := c.target
	lim := c.limiter
	min := c.minLevel
	c.mu.Unlock()

	if to.ChatID == 0 || c.sender == nil || lim == nil {
		return len(p), nil
	}
	if level < min || !lim.Allow() {
		return len(p), nil
	}

	msg := formatChatLine(p)
	if msg == "" {
		return len(p), nil
	}

	// Never block core logging.
	select {
	case c.queue <- chatItem{to: to, msg: msg}:
	default:
	}
	return len(p), nil
}

// formatChatLine best-effort decodes a zerolog JSON line into a compact
// human-readable message.
func formatChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return truncate(strings.TrimSpace(string(p)), 3500)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if lvl != "" {
		b.WriteString("[")
		b.WriteString(strings.ToUpper(lvl))
		b.WriteString("] ")
	}
	b.WriteString(msg)

	for k, v := range m {
		switch k {
		case "time", "level", "message", "caller":
			continue
		}
		b.WriteString("\n- ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(truncate(fmt.Sprint(v), 600))
	}
	return truncate(b.String(), 3500)
}

func truncate(s string, maxN int) string {
	if maxN <= 0 || len(s) <= maxN {
		return s
	}
	if maxN < 10 {
		return s[:maxN]
	}
	return s[:maxN-3] + "..."
}
