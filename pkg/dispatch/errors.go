package dispatch

import "errors"

var (
	// ErrHandlerNotFound means no handler is registered for the event's
	// command or component identifier. Normal outcome (expired
	// component, typo, stale id from a previous run), never fatal.
	ErrHandlerNotFound = errors.New("dispatch: handler not found")

	// ErrScopeViolation means the handler exists but its declaration
	// (or its group's) restricts it to group chats and the event came
	// from a private chat.
	ErrScopeViolation = errors.New("dispatch: handler is group-only")
)
