// Package dispatch routes inbound chat events to registered handlers.
//
// Commands are declared with metadata (description, scope restriction,
// timeout) and matched by name or alias. Interactive components
// (buttons) resolve through a concurrent Registry keyed by component
// identifier; registration typically happens when a UI element is
// activated (see package ui).
//
// Handlers run synchronously on the goroutine that delivers the event.
// A handler that needs background work hands off to the scheduler
// itself; the dispatcher never parallelizes handler execution. Handler
// panics and errors are contained at the dispatch boundary and never
// disturb subsequent events.
package dispatch
