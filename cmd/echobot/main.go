package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"botkit/pkg/config"
	"botkit/pkg/dispatch"
	"botkit/pkg/eventbus"
	"botkit/pkg/logx"
	"botkit/pkg/scheduler"
	"botkit/pkg/storage"
	kit "botkit/pkg/transport"
	"botkit/pkg/transport/telegram"
	"botkit/pkg/ui"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath string) error {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return err
	}

	logsvc, log := logx.New(cfg.Log.Logx())
	defer logsvc.Close()
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}
	logsvc.AttachChat(adapter)

	stCfg, err := cfg.Storage.Storage()
	if err != nil {
		return err
	}
	rec, err := storage.Open(stCfg, log.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer rec.Close()

	bus := eventbus.New()

	schedCfg, err := cfg.Scheduler.Scheduler()
	if err != nil {
		return err
	}
	sched := scheduler.New(schedCfg, log.With(logx.String("comp", "scheduler")),
		scheduler.WithBus(bus), scheduler.WithRecorder(rec))
	sched.Start(ctx)
	defer sched.Stop(context.Background())

	reg := dispatch.NewRegistry()
	disp := dispatch.New(reg, adapter, log.With(logx.String("comp", "dispatch")),
		dispatch.WithBus(bus), dispatch.WithRecorder(rec))
	disp.SetCommands(commands(sched, rec, reg), groups())

	// Housekeeping: sweep stale audit noise out of the log once a day.
	if _, err := sched.AddCron("audit:summary", "@daily", time.Minute, func(tctx context.Context) error {
		recent, err := rec.Recent(tctx, 200)
		if err != nil {
			return err
		}
		log.Info("daily audit summary", logx.Int("records", len(recent)))
		return nil
	}); err != nil {
		return err
	}

	// Config hot reload: re-apply the logging config on commit.
	sub := cfgm.Subscribe(1)
	defer cfgm.Unsubscribe(sub)
	go func() {
		for c := range sub {
			logsvc.Apply(c.Log.Logx())
		}
	}()
	go func() { _ = cfgm.Watch(ctx) }()

	events := make(chan kit.Event, bufferSize(cfg))
	if err := adapter.Start(ctx, events); err != nil {
		return err
	}
	defer adapter.Stop(context.Background())

	return disp.Run(ctx, events)
}

func bufferSize(cfg *config.Config) int {
	if cfg.Telegram.UpdatesBuffer > 0 {
		return cfg.Telegram.UpdatesBuffer
	}
	return 128
}

func groups() []dispatch.Group {
	return []dispatch.Group{
		{Name: "admin", Description: "administrative commands", Meta: dispatch.Meta{GroupOnly: true}},
	}
}

func commands(sched *scheduler.Service, rec storage.Recorder, reg *dispatch.Registry) []dispatch.Command {
	start := time.Now()
	return []dispatch.Command{
		{
			Name:        "ping",
			Description: "health check",
			Handle: func(ctx context.Context, req *dispatch.Request) error {
				return req.Reply(ctx, "pong")
			},
		},
		{
			Name:        "echo",
			Description: "echo back the arguments",
			Usage:       "/echo <text>",
			Handle: func(ctx context.Context, req *dispatch.Request) error {
				if len(req.Args) == 0 {
					return req.Reply(ctx, "nothing to echo")
				}
				return req.Reply(ctx, strings.Join(req.Args, " "))
			},
		},
		{
			Name:        "uptime",
			Description: "show bot uptime and scheduler state",
			Handle: func(ctx context.Context, req *dispatch.Request) error {
				snap := sched.Snapshot()
				return req.Reply(ctx, fmt.Sprintf("up %s, %d workers, %d queued, %d schedules",
					time.Since(start).Round(time.Second), snap.Workers, snap.QueueLen, len(snap.Schedules)))
			},
		},
		{
			Name:        "remind",
			Description: "send a reminder after a delay",
			Usage:       "/remind <duration> <text>",
			Handle: func(ctx context.Context, req *dispatch.Request) error {
				if len(req.Args) < 2 {
					return req.Reply(ctx, "usage: /remind <duration> <text>")
				}
				delay, err := time.ParseDuration(req.Args[0])
				if err != nil || delay <= 0 {
					return req.Reply(ctx, "invalid duration")
				}
				text := strings.Join(req.Args[1:], " ")
				chat := req.Chat
				adapter := req.Adapter
				sched.ScheduleOnce("remind", delay, func(tctx context.Context) error {
					_, err := adapter.SendText(tctx, chat, "reminder: "+text, nil)
					return err
				})
				return req.Reply(ctx, "reminder set for "+delay.String())
			},
		},
		{
			Name:        "audit",
			Description: "recent dispatch and task records",
			Group:       "admin",
			Handle: func(ctx context.Context, req *dispatch.Request) error {
				recent, err := rec.Recent(ctx, 10)
				if err != nil {
					if err == storage.ErrDisabled {
						return req.Reply(ctx, "audit storage is disabled")
					}
					return err
				}
				if len(recent) == 0 {
					return req.Reply(ctx, "no records")
				}
				var b strings.Builder
				for _, r := range recent {
					status := "ok"
					if !r.OK {
						status = "fail"
					}
					fmt.Fprintf(&b, "%s %s %s %s\n", r.At.Format("15:04:05"), r.Kind, r.Name, status)
				}
				return req.Reply(ctx, b.String())
			},
		},
		{
			Name:        "menu",
			Description: "show the interactive demo menu",
			Handle: func(ctx context.Context, req *dispatch.Request) error {
				kb := ui.NewKeyboard().
					Row(
						ui.Btn("Ping", "demo:ping", func(ctx context.Context, r *dispatch.Request) error {
							return r.Ack(ctx, "pong")
						}),
						ui.Btn("Time", "demo:time", func(ctx context.Context, r *dispatch.Request) error {
							return r.Ack(ctx, time.Now().Format(time.Kitchen))
						}),
					).
					Row(ui.URLBtn("Docs", "https://core.telegram.org/bots"))
				markup := kb.Bind(reg)
				_, err := req.Adapter.SendText(ctx, req.Chat, "demo menu:", &kit.SendOptions{ReplyMarkup: markup})
				return err
			},
		},
	}
}
