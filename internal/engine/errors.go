package engine

import "errors"

var (
	// ErrPlatformUnsupported is returned before any load attempt when the
	// host is not darwin/arm64.
	ErrPlatformUnsupported = errors.New("engine: platform not supported")
	// ErrEngineLoadFailed is sticky for the lifetime of a Loader.
	ErrEngineLoadFailed = errors.New("engine: failed to load native backend")
	ErrEngineInitFailed = errors.New("engine: failed to initialize whisper engine")
	ErrNotInitialized   = errors.New("engine: not initialized")

	// ErrNativeEngineUnavailable indicates the binary was built without the whispercpp tag.
	ErrNativeEngineUnavailable = errors.New("engine: native backend unavailable")
)
