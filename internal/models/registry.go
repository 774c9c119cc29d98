package models

// ModelInfo describes the single whisper.cpp model this module provisions.
type ModelInfo struct {
	Name      string
	SizeLabel string
	Languages string
	URL       string
	Filename  string
}

// EncoderInfo describes the CoreML encoder published as a directory tree on
// the Hugging Face hub.
type EncoderInfo struct {
	Repo        string
	Name        string
	APIURL      string
	DownloadURL string
}

const (
	huggingFaceHost = "https://huggingface.co"
	encoderRepo     = "sebastian-software/whisper-coreml-models"
)

// WhisperModel is large-v3-turbo, the only model supported: it is the one
// whisper variant with a useful speed/quality ratio on the Neural Engine.
var WhisperModel = ModelInfo{
	Name:      "large-v3-turbo",
	SizeLabel: "1.5 GB",
	Languages: "99 languages",
	URL:       huggingFaceHost + "/ggerganov/whisper.cpp/resolve/main/ggml-large-v3-turbo.bin",
	Filename:  "ggml-large-v3-turbo.bin",
}

// CoreMLEncoder is the compiled encoder required for ANE acceleration.
var CoreMLEncoder = EncoderInfo{
	Repo:        encoderRepo,
	Name:        "ggml-large-v3-turbo-encoder.mlmodelc",
	APIURL:      huggingFaceHost + "/api/models/" + encoderRepo,
	DownloadURL: huggingFaceHost + "/" + encoderRepo + "/resolve/main",
}
