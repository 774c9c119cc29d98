package models

import "errors"

// Download failures. All of them are retryable by calling the same download
// again: a failed run leaves nothing at the destination and the next run
// starts from scratch.
var (
	// ErrDownloadFailed indicates that the flat model file could not be fetched.
	ErrDownloadFailed = errors.New("models: download failed")

	// ErrTreeFetchFailed indicates that listing the remote encoder tree failed at some depth.
	ErrTreeFetchFailed = errors.New("models: failed to fetch file tree")

	// ErrFileFetchFailed indicates that one file of the encoder tree could not be fetched.
	ErrFileFetchFailed = errors.New("models: failed to fetch file")
)
