package scheduler

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"botkit/pkg/eventbus"
	"botkit/pkg/logx"
)

// RunAsync submits job for one execution on the pool, fire-and-forget:
// no ordering guarantee relative to other submissions, no handle, no
// completion signal. Never blocks the caller.
func (s *Service) RunAsync(name string, job Job) {
	if job == nil {
		return
	}
	s.enqueue(task{
		id:   fmt.Sprintf("async:%d", time.Now().UnixNano()),
		name: name,
		run:  job,
	})
}

// ScheduleOnce runs job exactly once, no earlier than delay from now.
// Cancelling the returned handle before the job starts guarantees it
// never runs; cancelling later is a no-op.
func (s *Service) ScheduleOnce(name string, delay time.Duration, job Job) *Handle {
	h := newHandle()
	if job == nil {
		h.Cancel()
		return h
	}
	if delay < 0 {
		delay = 0
	}
	id := fmt.Sprintf("once:%d", time.Now().UnixNano())
	tmr := time.AfterFunc(delay, func() {
		if h.Cancelled() {
			return
		}
		s.enqueue(task{id: id, name: name, run: job, handle: h})
	})
	h.setTimer(tmr)
	return h
}

// ScheduleRecurring runs job at fixed rate per trig: first execution no
// earlier than trig.Initial from now, then every trig.Period measured
// between scheduled starts, not completions. Same-schedule executions
// never overlap (a fire during a still-running execution is skipped);
// use ScheduleRecurringOpt with OverlapAllow to permit overlap.
func (s *Service) ScheduleRecurring(name string, trig Trigger, job Job) (*Handle, error) {
	return s.ScheduleRecurringOpt(name, trig, OverlapSkipIfRunning, job)
}

// ScheduleRecurringOpt is ScheduleRecurring with an explicit overlap
// policy.
func (s *Service) ScheduleRecurringOpt(name string, trig Trigger, overlap OverlapPolicy, job Job) (*Handle, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("scheduler: name required")
	}
	if job == nil {
		return nil, errors.New("scheduler: job required")
	}
	if err := trig.Validate(); err != nil {
		return nil, err
	}

	h := newHandle()
	st := &runState{}
	id := fmt.Sprintf("recurring:%d", time.Now().UnixNano())

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		h.Cancel()
		return nil, errors.New("scheduler: stopped")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.runRecurring(id, name, trig, overlap, st, h, job)
	}()

	s.log.Debug("recurring schedule registered",
		logx.String("name", name), logx.String("id", id),
		logx.Duration("initial", trig.Initial), logx.Duration("period", trig.Period))
	return h, nil
}

func (s *Service) runRecurring(id, name string, trig Trigger, overlap OverlapPolicy, st *runState, h *Handle, job Job) {
	fire := func() {
		if overlap == OverlapSkipIfRunning && st.isRunning() {
			s.log.Debug("schedule skipped (previous run still running)", logx.String("task", name))
			s.publish(eventbus.TopicTaskSkipped, TaskEvent{ID: id, Name: name, Started: time.Now(), Error: "overlap_skip"})
			return
		}
		// Mark busy at enqueue time so the next tick sees the in-flight
		// run even before a worker picks it up.
		st.setRunning(true)
		if !s.enqueue(task{id: id, name: name, run: job, state: st, handle: h}) {
			st.setRunning(false)
		}
	}

	tmr := time.NewTimer(trig.Initial)
	select {
	case <-h.done:
		tmr.Stop()
		return
	case <-s.quit:
		tmr.Stop()
		return
	case <-tmr.C:
	}
	fire()

	// Ticker gives fixed-rate cadence: tick times are spaced by Period
	// regardless of how long each execution takes, and a slow cycle does
	// not compound drift into the next one.
	ticker := time.NewTicker(trig.Period)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-s.quit:
			return
		case <-ticker.C:
			fire()
		}
	}
}

// AddCron registers a named cron-spec schedule. Names are stable and
// human readable; registering an existing name replaces it (upsert).
// Supported specs: 5-field or 6-field cron, "@hourly", "@every 55m".
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return "", errors.New("scheduler: name required")
	}
	if job == nil {
		return "", errors.New("scheduler: job required")
	}
	_ = s.removeScheduleLocked(name)

	id := fmt.Sprintf("cron:%d", time.Now().UnixNano())
	d := scheduleDef{
		id:      id,
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		state:   &runState{},
	}
	if s.c == nil {
		// Not started yet: validate now, keep the definition; Start
		// registers it.
		if _, err := s.parser.Parse(spec); err != nil {
			return "", err
		}
		s.defs = append(s.defs, d)
		return id, nil
	}
	s.defs = append(s.defs, d)
	if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
		s.log.Error("schedule register failed", logx.String("name", name), logx.String("spec", spec), logx.Err(err))
		return "", err
	}
	s.log.Debug("schedule registered", logx.String("name", name), logx.String("id", id), logx.String("spec", spec))
	return id, nil
}

// AddInterval registers a named fixed-interval schedule ("@every d").
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, job Job) (string, error) {
	if every <= 0 {
		return "", errors.New("scheduler: interval must be > 0")
	}
	return s.AddCron(name, fmt.Sprintf("@every %s", every.String()), timeout, job)
}

// Remove unschedules the named cron/interval schedule. It returns true
// if something was removed. Trigger-based schedules are cancelled
// through their handles, not by name.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	removed := s.removeScheduleLocked(name)
	s.mu.Unlock()
	if removed {
		s.log.Debug("schedule removed", logx.String("name", name))
	}
	return removed
}

// removeScheduleLocked removes all defs matching name and unregisters
// them from cron if running. Call with s.mu held.
func (s *Service) removeScheduleLocked(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				s.defs[i].entryID = 0
				removed = true
			}
		}
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// addCronLocked registers d with the running cron. Call with s.mu held.
func (s *Service) addCronLocked(d *scheduleDef) error {
	eid, err := s.c.AddFunc(d.spec, func() {
		if d.overlap == OverlapSkipIfRunning && d.state.isRunning() {
			s.log.Debug("schedule skipped (previous run still running)", logx.String("task", d.name))
			s.publish(eventbus.TopicTaskSkipped, TaskEvent{ID: d.id, Name: d.name, Started: time.Now(), Error: "overlap_skip"})
			return
		}
		d.state.setRunning(true)
		if !s.enqueue(task{id: d.id, name: d.name, timeout: d.timeout, run: d.job, state: d.state}) {
			d.state.setRunning(false)
		}
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}
