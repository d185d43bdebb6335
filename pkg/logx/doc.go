// Package logx wraps zerolog behind a small, swap-safe logging facade.
//
// A Logger is a value; With() derives loggers with fixed fields and the
// zero value is a safe no-op. The Service owns the sinks (console, file,
// operator chat) and can re-apply its config at runtime without
// invalidating loggers already handed out.
package logx
