//go:build !whispercpp

package engine

import "log/slog"

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return false }

func openNative(*slog.Logger) (Native, error) {
	return nil, ErrNativeEngineUnavailable
}
