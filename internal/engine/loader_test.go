package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBrokenInstall = errors.New("dlopen: image not found")

func TestLoaderAcquiresOnce(t *testing.T) {
	native := &fakeNative{initOK: true}
	loader := NewLoader(nil, func() (Native, error) { return native, nil })

	for i := 0; i < 3; i++ {
		got, err := loader.Acquire()
		require.NoError(t, err, "Acquire #%d", i)
		assert.Same(t, native, got, "Acquire #%d returned a different handle", i)
	}
	assert.Equal(t, 1, loader.Attempts())
	assert.NoError(t, loader.LoadError())
}

func TestLoaderPlatformGateRunsBeforeLoad(t *testing.T) {
	opened := false
	loader := NewLoader(func() bool { return false }, func() (Native, error) {
		opened = true
		return &fakeNative{}, nil
	})

	_, err := loader.Acquire()
	require.ErrorIs(t, err, ErrPlatformUnsupported)
	assert.False(t, opened, "backend opened on an unsupported platform")
	assert.Zero(t, loader.Attempts())
	assert.NoError(t, loader.LoadError(), "platform rejection is not a load error")
}

func TestLoaderFailureIsSticky(t *testing.T) {
	loader := NewLoader(nil, func() (Native, error) { return nil, errBrokenInstall })

	for i := 0; i < 3; i++ {
		_, err := loader.Acquire()
		require.ErrorIs(t, err, ErrEngineLoadFailed, "Acquire #%d", i)
		require.ErrorIs(t, err, errBrokenInstall, "Acquire #%d", i)
	}
	assert.Equal(t, 1, loader.Attempts())
	assert.ErrorIs(t, loader.LoadError(), errBrokenInstall)
}

func TestLoaderResetAllowsRetry(t *testing.T) {
	fail := true
	loader := NewLoader(nil, func() (Native, error) {
		if fail {
			return nil, errBrokenInstall
		}
		return &fakeNative{}, nil
	})

	_, err := loader.Acquire()
	require.Error(t, err)
	fail = false
	_, err = loader.Acquire()
	require.Error(t, err, "failure stays sticky before Reset")

	loader.Reset()
	_, err = loader.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 2, loader.Attempts())
}

func TestLoaderNilHandleIsLoadFailure(t *testing.T) {
	loader := NewLoader(nil, func() (Native, error) { return nil, nil })
	_, err := loader.Acquire()
	assert.ErrorIs(t, err, ErrNativeEngineUnavailable)
}

func TestLoaderAvailableDoesNotLoad(t *testing.T) {
	loader := NewLoader(func() bool { return true }, func() (Native, error) {
		t.Fatal("Available must not open the backend")
		return nil, nil
	})
	assert.True(t, loader.Available())
	assert.Zero(t, loader.Attempts())
}

func TestNativeLoaderWithoutBackend(t *testing.T) {
	if NativeAvailable() {
		t.Skip("native backend compiled in")
	}
	loader := NewNativeLoader(nil)
	_, err := loader.Acquire()
	if !PlatformSupported() {
		assert.ErrorIs(t, err, ErrPlatformUnsupported)
		return
	}
	assert.ErrorIs(t, err, ErrEngineLoadFailed)
	assert.ErrorIs(t, err, ErrNativeEngineUnavailable)
}

func TestSelectLoaderStub(t *testing.T) {
	loader := SelectLoader(true, nil)
	native, err := loader.Acquire()
	require.NoError(t, err)
	assert.IsType(t, &StubNative{}, native)
}
