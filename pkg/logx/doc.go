// Package logx is taskplan's structured logging on top of zerolog.
//
// Console lines carry a millisecond timestamp and a file:line caller; the
// log file gets the same events as JSON. The zero Logger is a no-op, so
// packages take one without requiring it.
package logx
