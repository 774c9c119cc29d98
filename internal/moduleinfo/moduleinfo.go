package moduleinfo

// Metadata captures static identifiers for the module.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
}

// Info describes the current module.
var Info = Metadata{
	Name:        "Whisper CoreML",
	BinaryName:  "whisper-coreml",
	Slug:        "whisper-coreml",
	Description: "Whisper large-v3-turbo speech recognition with CoreML acceleration on Apple Silicon.",
}

// version is replaced at link time:
//
//	go build -ldflags "-X github.com/nupi-ai/plugin-stt-whisper-coreml/internal/moduleinfo.version=1.2.3"
var version = "1.0.0"

// Version returns the module release version.
func Version() string {
	return version
}

// UserAgent identifies the module in outgoing HTTP requests.
func UserAgent() string {
	return Info.Slug + "/" + version
}
