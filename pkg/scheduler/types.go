package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"botkit/pkg/eventbus"
	"botkit/pkg/logx"
	"botkit/pkg/storage"
)

// Job is a unit of background work. The context carries the per-task
// timeout and is cancelled when the service stops.
type Job func(ctx context.Context) error

// Config controls the scheduler service.
type Config struct {
	Workers        int           // pool size; default 2
	QueueSize      int           // pending task buffer; default 256
	DefaultTimeout time.Duration // applied when a task has no timeout of its own
	HistorySize    int           // run-history ring size; default 200
	Timezone       string        // IANA TZ for cron schedules, e.g. "Asia/Jakarta"
}

// OverlapPolicy decides what happens when a recurring schedule fires
// while its previous execution is still running. The zero value skips,
// which keeps same-schedule executions from ever overlapping.
type OverlapPolicy int

const (
	OverlapSkipIfRunning OverlapPolicy = iota
	OverlapAllow
)

type runState struct {
	mu      sync.Mutex
	running bool
}

func (st *runState) isRunning() bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.running
}

func (st *runState) setRunning(v bool) {
	st.mu.Lock()
	st.running = v
	st.mu.Unlock()
}

// task is one pending execution on the pool.
type task struct {
	id      string
	name    string
	timeout time.Duration
	run     Job
	state   *runState // shared across executions of one schedule; nil for RunAsync
	handle  *Handle   // nil for RunAsync
}

// HistoryItem records one completed execution.
type HistoryItem struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// TaskEvent is the payload published on the event bus for task.* topics.
type TaskEvent struct {
	ID       string
	Name     string
	Started  time.Time
	Duration time.Duration
	Error    string
}

// scheduleDef is a named cron/interval schedule (upsert by name).
type scheduleDef struct {
	id      string
	name    string
	spec    string // cron spec or @every
	timeout time.Duration
	job     Job
	entryID cron.EntryID
	state   *runState
	overlap OverlapPolicy
}

// Service owns the worker pool and all schedules. Construct with New,
// Start once, Stop once at shutdown.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location

	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	queue   chan task
	quit    chan struct{}
	started bool
	stopped bool
	wg      sync.WaitGroup

	bus eventbus.Bus
	rec storage.Recorder

	hmu     sync.Mutex
	history []HistoryItem
}

type ScheduleInfo struct {
	ID      string
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

// Snapshot is a point-in-time view for diagnostics (e.g. a /health
// command).
type Snapshot struct {
	Workers   int
	QueueLen  int
	Timezone  string
	Schedules []ScheduleInfo
	History   []HistoryItem
}

// Option configures optional collaborators.
type Option func(*Service)

// WithBus publishes task lifecycle events on bus.
func WithBus(bus eventbus.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithRecorder persists run results through rec.
func WithRecorder(rec storage.Recorder) Option {
	return func(s *Service) { s.rec = rec }
}
