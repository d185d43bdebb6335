package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"botkit/pkg/eventbus"
	"botkit/pkg/logx"
	"botkit/pkg/storage"
)

func New(cfg Config, log logx.Logger, opts ...Option) *Service {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	s := &Service{
		cfg: cfg,
		log: log,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		queue:  make(chan task, cfg.QueueSize),
		quit:   make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start spins up the worker pool and the cron runner. Work scheduled
// before Start is already queued and begins executing now. Start is a
// no-op after the first call.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))

	// Register schedules added before Start.
	for i := range s.defs {
		if err := s.addCronLocked(&s.defs[i]); err != nil {
			s.log.Error("schedule register failed", logx.String("name", s.defs[i].name), logx.Err(err))
		}
	}

	for i := 0; i < s.cfg.Workers; i++ {
		idx := i
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.worker(ctx, idx)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", s.cfg.Workers), logx.String("tz", loc.String()))
}

// Stop shuts the pool down. In-flight executions finish; queued work is
// abandoned. Stop is final: trigger-driven schedules end and the service
// cannot be restarted.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.quit)
	c := s.c
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Service) enqueue(t task) bool {
	select {
	case <-s.quit:
		s.log.Debug("scheduler stopped; dropping task", logx.String("task", t.name))
		return false
	default:
	}
	select {
	case s.queue <- t:
		return true
	default:
		s.log.Warn("scheduler queue full; dropping task",
			logx.String("task", t.name), logx.Int("queue_len", len(s.queue)), logx.Int("queue_cap", cap(s.queue)))
		return false
	}
}

func (s *Service) worker(ctx context.Context, idx int) {
	for {
		// Fast-exit check so shutdown wins over queued work.
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case t := <-s.queue:
			s.execOne(ctx, t)
		}
	}
}

func (s *Service) execOne(ctx context.Context, t task) {
	// The busy flag was raised at enqueue time for overlap control; clear
	// it once this execution is over, whether or not the job ran.
	if t.state != nil {
		defer t.state.setRunning(false)
	}

	// Cancellation guarantee: a cancelled handle means this execution
	// never starts, even if it was already queued.
	if t.handle != nil && t.handle.Cancelled() {
		return
	}

	start := time.Now()
	err := s.runIsolated(ctx, t)
	dur := time.Since(start)

	item := HistoryItem{ID: t.id, Name: t.name, Started: start, Duration: dur}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", t.name), logx.Err(err), logx.Duration("dur", dur))
		s.publish(eventbus.TopicTaskFailed, TaskEvent{ID: t.id, Name: t.name, Started: start, Duration: dur, Error: item.Error})
	} else {
		s.log.Debug("task completed", logx.String("task", t.name), logx.Duration("dur", dur))
		s.publish(eventbus.TopicTaskOK, TaskEvent{ID: t.id, Name: t.name, Started: start, Duration: dur})
	}
	s.record(t, start, dur, err)

	s.hmu.Lock()
	s.history = append(s.history, item)
	size := s.historySize()
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}

// runIsolated executes one task body. Panics and errors are contained
// here; nothing a task does may take a worker down.
func (s *Service) runIsolated(ctx context.Context, t task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in task",
				logx.String("task", t.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	runCtx := ctx
	timeout := s.resolveTimeout(t.timeout)
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return t.run(runCtx)
}

func (s *Service) publish(topic string, ev TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Topic: topic, Data: ev})
}

func (s *Service) record(t task, start time.Time, dur time.Duration, err error) {
	if s.rec == nil {
		return
	}
	rec := storage.Record{
		At: start, Kind: "task", Name: t.name,
		OK: err == nil, TookMS: dur.Milliseconds(),
	}
	if err != nil {
		rec.Error = err.Error()
	}
	wctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if werr := s.rec.Append(wctx, rec); werr != nil && werr != storage.ErrDisabled {
		s.log.Debug("run record write failed", logx.Err(werr))
	}
}

func (s *Service) historySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.HistorySize > 0 {
		return s.cfg.HistorySize
	}
	return 200
}

// History returns a copy of the recent run history, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

// Snapshot returns a diagnostics view of the service.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		Workers:  s.cfg.Workers,
		QueueLen: len(s.queue),
		Timezone: s.cfg.Timezone,
	}
	for _, d := range s.defs {
		info := ScheduleInfo{ID: d.id, Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			info.Next, info.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, info)
	}
	s.mu.Unlock()

	snap.History = s.History()
	return snap
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.DefaultTimeout
}
