package rruntime

import "fmt"

// GoRoutineFactory is handed to subsystems (stats, pollers) that spawn their
// own goroutines.
var GoRoutineFactory goRoutineFactory

type goRoutineFactory struct{}

func (goRoutineFactory) Go(function func()) {
	Go(function)
}

// Go starts function in a new goroutine. A panic inside it is re-raised with
// its original value so it still crashes the process instead of unwinding
// silently.
func Go(function func()) {
	GoHandleError(function, panicOnError)
}

func GoHandleError(function func(), errorHandler func(err error)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errorHandler(fmt.Errorf("%v", r))
			}
		}()
		function()
	}()
}

func panicOnError(err error) {
	panic(err)
}
