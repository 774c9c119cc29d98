package engine

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// OpenFunc loads a backend.
type OpenFunc func() (Native, error)

// Loader owns the single backend handle of a process. It opens the backend
// at most once; a failed open is remembered and returned on every later
// Acquire until Reset is called.
type Loader struct {
	mu        sync.Mutex
	supported func() bool
	open      OpenFunc

	handle   Native
	loadErr  error
	attempts int
}

// NewLoader builds a Loader gated by supported. A nil supported accepts any platform.
func NewLoader(supported func() bool, open OpenFunc) *Loader {
	if supported == nil {
		supported = func() bool { return true }
	}
	return &Loader{supported: supported, open: open}
}

// NewNativeLoader returns the production Loader: the whisper.cpp binding,
// gated on Apple Silicon.
func NewNativeLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return NewLoader(PlatformSupported, func() (Native, error) {
		return openNative(logger)
	})
}

// NewStubLoader returns a Loader for StubNative that works on every platform.
func NewStubLoader(logger *slog.Logger) *Loader {
	return NewLoader(nil, func() (Native, error) {
		return NewStubNative(logger), nil
	})
}

// PlatformSupported reports whether the host is darwin/arm64.
func PlatformSupported() bool {
	return runtime.GOOS == "darwin" && runtime.GOARCH == "arm64"
}

// Acquire returns the shared handle, opening it on first use.
func (l *Loader) Acquire() (Native, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.handle != nil {
		return l.handle, nil
	}
	if !l.supported() {
		return nil, fmt.Errorf("%w: %s/%s", ErrPlatformUnsupported, runtime.GOOS, runtime.GOARCH)
	}
	if l.loadErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineLoadFailed, l.loadErr)
	}

	l.attempts++
	handle, err := l.open()
	if err == nil && handle == nil {
		err = ErrNativeEngineUnavailable
	}
	if err != nil {
		l.loadErr = err
		return nil, fmt.Errorf("%w: %w", ErrEngineLoadFailed, err)
	}
	l.handle = handle
	return handle, nil
}

// Available reports whether the platform gate passes. It never opens the backend.
func (l *Loader) Available() bool {
	return l.supported()
}

// LoadError returns the remembered open failure, if any.
func (l *Loader) LoadError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadErr
}

// Attempts returns how many times the backend has been opened.
func (l *Loader) Attempts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.attempts
}

// Reset forgets a failed open so the next Acquire tries again. A loaded
// handle is kept.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loadErr = nil
}

// SelectLoader picks the stub when forced by configuration and the native
// binding otherwise.
func SelectLoader(useStub bool, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	if useStub {
		logger.Warn("stub engine forced by configuration")
		return NewStubLoader(logger)
	}
	if !NativeAvailable() {
		logger.Warn("native backend disabled at build time; rebuild with -tags whispercpp")
	}
	return NewNativeLoader(logger)
}
