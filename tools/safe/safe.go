package safe

import (
	"fmt"
	"reflect"

	"ChatRelay/logger"
	"ChatRelay/tools/errs"

	"go.uber.org/zap"
)

// MustNotNil panics if the given value is nil.
// Used for required collaborators during construction.
func MustNotNil(v any, name string) {
	if v == nil {
		panic(fmt.Sprintf("%s must not be nil", name))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			panic(fmt.Sprintf("%s must not be nil", name))
		}
	}
}

// Go starts f in a goroutine that recovers from panic,
// so that panics don't crash the entire program.
func Go(name string, f func()) {
	go func() {
		defer Recover(name, nil)
		f()
	}()
}

// Recover logs a recovered panic as an internal code error. It must be deferred directly.
// onPanic, if set, receives the wrapped error.
func Recover(name string, onPanic func(error)) {
	r := recover()
	if r == nil {
		return
	}
	err := errs.ErrPanic(r)
	logger.Log.Error("panic recovered", zap.String("where", name), zap.Error(err), zap.Stack("stack"))
	if onPanic != nil {
		onPanic(err)
	}
}
