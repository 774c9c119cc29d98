//go:build whispercpp

package engine

/*
#cgo CFLAGS: -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo CXXFLAGS: -std=c++17 -I${SRCDIR}/../../third_party/whisper.cpp -I${SRCDIR}/../../third_party/whisper.cpp/include -I${SRCDIR}/../../third_party/whisper.cpp/ggml/include
#cgo LDFLAGS: -L${SRCDIR}/../../third_party/whisper.cpp/build -L${SRCDIR}/../../third_party/whisper.cpp/build/src -Wl,-rpath,${SRCDIR}/../../third_party/whisper.cpp/build/src -lwhisper -lstdc++ -lm
#cgo darwin LDFLAGS: -framework Foundation -framework CoreML -framework Metal

#include "stdlib.h"
#include "include/whisper.h"
#include "ggml.h"

bool whisperGoAbort(void * user_data);
*/
import "C"

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/cgo"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo"
)

const defaultThreads = 4

// NativeAvailable reports whether the whisper.cpp backend is compiled in.
func NativeAvailable() bool { return true }

// whisperNative binds whisper.cpp. The CoreML encoder is picked up by
// whisper.cpp from the directory next to the model file.
type whisperNative struct {
	mu   sync.Mutex
	ctx  *C.struct_whisper_context
	opts NativeOptions
	log  *slog.Logger

	// loaded tracks ctx != nil; mu is held for the whole of whisper_full.
	loaded atomic.Bool
}

func openNative(logger *slog.Logger) (Native, error) {
	return &whisperNative{log: logger.With("component", "engine.native")}, nil
}

func (w *whisperNative) Initialize(opts NativeOptions) (bool, error) {
	if opts.ModelPath == "" {
		return false, errors.New("whisper: model path required")
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.freeLocked()

	cPath := C.CString(opts.ModelPath)
	defer C.free(unsafe.Pointer(cPath))
	cParams := C.whisper_context_default_params()
	cParams.use_gpu = C.bool(opts.UseGPU)

	ctx := C.whisper_init_from_file_with_params(cPath, cParams)
	if ctx == nil {
		w.log.Error("whisper context initialisation failed", "model_path", opts.ModelPath)
		return false, nil
	}
	w.ctx = ctx
	w.opts = opts
	w.loaded.Store(true)
	return true, nil
}

func (w *whisperNative) IsInitialized() bool {
	return w.loaded.Load()
}

func (w *whisperNative) Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ctx == nil {
		return Result{}, errors.New("whisper: engine not initialized")
	}

	start := time.Now()
	audio := resampleLinear(samples, sampleRate, DefaultSampleRate)
	if len(audio) == 0 {
		return Result{Language: w.opts.Language}, nil
	}

	state := C.whisper_init_state(w.ctx)
	if state == nil {
		return Result{}, errors.New("whisper: failed to initialise state")
	}
	defer C.whisper_free_state(state)

	params := C.whisper_full_default_params(C.WHISPER_SAMPLING_GREEDY)
	params.print_progress = C.bool(false)
	params.print_realtime = C.bool(false)
	params.print_special = C.bool(false)
	params.print_timestamps = C.bool(false)
	params.translate = C.bool(false)
	params.no_timestamps = C.bool(false)
	params.single_segment = C.bool(false)
	params.token_timestamps = C.bool(true)

	threads := w.opts.Threads
	if threads <= 0 {
		threads = defaultThreads
	}
	params.n_threads = C.int(threads)

	lang := w.opts.Language
	cLang := C.CString(lang)
	defer C.free(unsafe.Pointer(cLang))
	params.language = cLang
	params.detect_language = C.bool(false)

	handle := cgo.NewHandle(ctx)
	defer handle.Delete()
	params.abort_callback = (C.ggml_abort_callback)(C.whisperGoAbort)
	params.abort_callback_user_data = unsafe.Pointer(&handle)

	cSamples := (*C.float)(unsafe.Pointer(&audio[0]))
	if ret := C.whisper_full_with_state(w.ctx, state, params, cSamples, C.int(len(audio))); ret != 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		return Result{}, fmt.Errorf("whisper: transcription failed with code %d", int(ret))
	}

	res := collectResult(state)
	res.Language = lang
	if strings.EqualFold(lang, autoLanguage) {
		res.Language = C.GoString(C.whisper_lang_str(C.whisper_full_lang_id_from_state(state)))
	}
	res.DurationMs = float64(time.Since(start).Microseconds()) / 1000
	return res, nil
}

func (w *whisperNative) Cleanup() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.freeLocked()
	return nil
}

func (w *whisperNative) Version() Version {
	return Version{
		Addon:   moduleinfo.Version(),
		Whisper: "whisper.cpp CoreML",
		CoreML:  "CoreML (ANE accelerated)",
	}
}

func (w *whisperNative) freeLocked() {
	if w.ctx != nil {
		C.whisper_free(w.ctx)
		w.ctx = nil
	}
	w.loaded.Store(false)
}

func collectResult(state *C.struct_whisper_state) Result {
	count := int(C.whisper_full_n_segments_from_state(state))
	var (
		res     Result
		builder strings.Builder
	)
	for i := 0; i < count; i++ {
		text := C.GoString(C.whisper_full_get_segment_text_from_state(state, C.int(i)))
		res.Segments = append(res.Segments, Segment{
			StartMs:    int64(C.whisper_full_get_segment_t0_from_state(state, C.int(i))) * 10,
			EndMs:      int64(C.whisper_full_get_segment_t1_from_state(state, C.int(i))) * 10,
			Text:       text,
			Confidence: segmentConfidence(state, i),
		})
		if builder.Len() > 0 && text != "" && !strings.HasPrefix(text, " ") {
			builder.WriteByte(' ')
		}
		builder.WriteString(text)
	}
	res.Text = strings.TrimSpace(builder.String())
	return res
}

// segmentConfidence averages the token probabilities of one segment.
func segmentConfidence(state *C.struct_whisper_state, segment int) float32 {
	var (
		sum     float64
		samples int
	)
	tokens := int(C.whisper_full_n_tokens_from_state(state, C.int(segment)))
	for j := 0; j < tokens; j++ {
		data := C.whisper_full_get_token_data_from_state(state, C.int(segment), C.int(j))
		if data.p > 0 {
			sum += float64(data.p)
			samples++
		}
	}
	if samples == 0 {
		return 0
	}
	return float32(sum / float64(samples))
}

//export whisperGoAbort
func whisperGoAbort(userData unsafe.Pointer) C.bool {
	return C.bool(shouldAbort(userData))
}
