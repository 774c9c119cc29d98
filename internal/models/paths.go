package models

import (
	"os"
	"path/filepath"
)

// DefaultModelDir returns the per-user cache directory holding both assets.
func DefaultModelDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	return filepath.Join(homeDir, ".cache", "whisper-coreml", "models")
}

// ModelPath returns the location of the ggml model file under dir.
// An empty dir selects DefaultModelDir.
func ModelPath(dir string) string {
	return filepath.Join(resolveDir(dir), WhisperModel.Filename)
}

// EncoderPath returns the location of the CoreML encoder directory under dir.
// An empty dir selects DefaultModelDir.
func EncoderPath(dir string) string {
	return filepath.Join(resolveDir(dir), CoreMLEncoder.Name)
}

// IsBinModelDownloaded reports whether the model file exists.
//
// Presence is existence only. An empty or truncated file counts as present;
// a corrupt model surfaces later as an engine initialisation failure.
func IsBinModelDownloaded(dir string) bool {
	return exists(ModelPath(dir))
}

// IsEncoderDownloaded reports whether the encoder directory exists.
func IsEncoderDownloaded(dir string) bool {
	return exists(EncoderPath(dir))
}

// IsModelDownloaded reports whether both the model file and the encoder are present.
func IsModelDownloaded(dir string) bool {
	return IsBinModelDownloaded(dir) && IsEncoderDownloaded(dir)
}

func resolveDir(dir string) string {
	if dir == "" {
		return DefaultModelDir()
	}
	return dir
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
