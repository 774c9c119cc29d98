package engine

import "context"

// Native is the boundary to a loaded speech recognition backend. One Native
// value is shared by every Engine built on the same Loader.
type Native interface {
	// Initialize loads the model. A false return without error means the
	// backend refused the options (for example an unreadable model file).
	Initialize(opts NativeOptions) (bool, error)
	IsInitialized() bool
	// Transcribe recognises mono samples in [-1, 1] recorded at sampleRate Hz.
	Transcribe(ctx context.Context, samples []float32, sampleRate int) (Result, error)
	Cleanup() error
	Version() Version
}

// Options configures an Engine.
type Options struct {
	// ModelPath points at the ggml model file. The encoder is expected next
	// to it and is located by the backend itself.
	ModelPath string
	// Language is an ISO code or "auto" (the default).
	Language string
	// Threads is the decoder thread count; 0 lets the backend decide.
	Threads int
	// UseGPU toggles CoreML/Metal acceleration; nil means enabled.
	UseGPU *bool
}

// NativeOptions is Options with every default resolved.
type NativeOptions struct {
	ModelPath string
	Language  string
	Threads   int
	UseGPU    bool
}

func (o Options) resolve() NativeOptions {
	useGPU := true
	if o.UseGPU != nil {
		useGPU = *o.UseGPU
	}
	return NativeOptions{
		ModelPath: o.ModelPath,
		Language:  normaliseLanguage(o.Language),
		Threads:   max(o.Threads, 0),
		UseGPU:    useGPU,
	}
}

// Result is a complete transcription of one audio buffer.
type Result struct {
	Text     string
	Language string
	// DurationMs is the processing time measured inside the backend, not the
	// wall-clock latency of the call.
	DurationMs float64
	Segments   []Segment
}

// Segment is a timestamped span of recognised text.
type Segment struct {
	StartMs    int64   `json:"startMs"`
	EndMs      int64   `json:"endMs"`
	Text       string  `json:"text"`
	Confidence float32 `json:"confidence"`
}

// Version identifies the backend components.
type Version struct {
	Addon   string
	Whisper string
	CoreML  string
}

const unknownVersion = "unknown"

// UnknownVersion is reported when no backend can be loaded.
func UnknownVersion() Version {
	return Version{Addon: unknownVersion, Whisper: unknownVersion, CoreML: unknownVersion}
}
