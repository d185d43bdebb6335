// Package storage persists observability records: dispatch outcomes and
// scheduled-run results. It never stores schedules or handlers; the
// framework stays fully in-memory and this is an audit trail only.
package storage
