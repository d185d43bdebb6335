package storage

import (
	"context"
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage: disabled")

type Config struct {
	Enabled     bool
	Path        string
	BusyTimeout time.Duration
}

// Record is a single audit entry: one dispatched interaction or one
// scheduled-run result.
type Record struct {
	At     time.Time
	Kind   string // "dispatch" or "task"
	Name   string // command route, component id, or schedule name
	ChatID int64
	FromID int64
	OK     bool
	Error  string
	TookMS int64
}

// Recorder appends audit records. Implementations must be safe for
// concurrent use.
type Recorder interface {
	Append(ctx context.Context, r Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Nop returns a Recorder that drops everything.
func Nop() Recorder { return nopRecorder{} }

type nopRecorder struct{}

func (nopRecorder) Append(context.Context, Record) error { return nil }
func (nopRecorder) Recent(context.Context, int) ([]Record, error) {
	return nil, nil
}
func (nopRecorder) Close() error { return nil }
