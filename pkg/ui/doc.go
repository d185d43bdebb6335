// Package ui builds inline keyboards whose buttons carry handlers.
//
// Construction is pure: a Keyboard is just a description and Markup()
// renders it without side effects, so tests can inspect layouts freely.
// Activation is explicit: Bind() registers every callback button's
// handler with a dispatch.Registry and returns the markup ready to
// send. Rebinding a keyboard overwrites prior registrations for the
// same component identifiers (last build wins).
package ui
