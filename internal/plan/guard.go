package plan

import (
	"errors"
	"runtime/debug"

	logx "taskplan/pkg/logx"
)

// guard runs fn and converts a panic into a *PanicError so one bad record
// cannot abort the rest of the backlog.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return fn()
}

func stackField(err error) logx.Field {
	var pe *PanicError
	if errors.As(err, &pe) {
		return logx.Stack(pe.Stack)
	}
	return nil
}
