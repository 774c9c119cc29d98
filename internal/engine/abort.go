//go:build whispercpp

package engine

import (
	"context"
	"runtime/cgo"
	"unsafe"
)

// shouldAbort is polled by whisper.cpp during inference. userData points at
// a cgo.Handle wrapping the caller's context.
func shouldAbort(userData unsafe.Pointer) bool {
	ctx, ok := contextFromHandle(userData)
	return ok && ctx.Err() != nil
}

func contextFromHandle(userData unsafe.Pointer) (ctx context.Context, ok bool) {
	if userData == nil {
		return nil, false
	}
	handle := *(*cgo.Handle)(userData)
	if handle == 0 {
		return nil, false
	}
	// Value panics on a deleted handle.
	defer func() {
		if recover() != nil {
			ctx, ok = nil, false
		}
	}()
	ctx, ok = handle.Value().(context.Context)
	return ctx, ok
}
