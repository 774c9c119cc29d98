package telemetry

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Recorder tracks module-level counters for asset downloads and transcriptions.
type Recorder struct {
	log *slog.Logger

	totalDownloads      atomic.Uint64
	failedDownloads     atomic.Uint64
	activeDownloads     atomic.Int64
	totalBytes          atomic.Uint64
	totalFiles          atomic.Uint64
	totalTranscriptions atomic.Uint64
	totalAudioMillis    atomic.Uint64
	totalEngineMillis   atomic.Uint64
}

// Snapshot captures cumulative metrics recorded so far.
type Snapshot struct {
	TotalDownloads      uint64
	FailedDownloads     uint64
	ActiveDownloads     int64
	TotalBytes          uint64
	TotalFiles          uint64
	TotalTranscriptions uint64
	TotalAudioMillis    uint64
	TotalEngineMillis   uint64
}

// NewRecorder constructs a Recorder using the provided logger.
func NewRecorder(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		log: logger.With("component", "telemetry.Recorder"),
	}
}

// Snapshot returns an immutable view of the recorder totals.
func (r *Recorder) Snapshot() Snapshot {
	if r == nil {
		return Snapshot{}
	}
	return Snapshot{
		TotalDownloads:      r.totalDownloads.Load(),
		FailedDownloads:     r.failedDownloads.Load(),
		ActiveDownloads:     r.activeDownloads.Load(),
		TotalBytes:          r.totalBytes.Load(),
		TotalFiles:          r.totalFiles.Load(),
		TotalTranscriptions: r.totalTranscriptions.Load(),
		TotalAudioMillis:    r.totalAudioMillis.Load(),
		TotalEngineMillis:   r.totalEngineMillis.Load(),
	}
}

// RecordTranscription stores one engine call. engineMillis is the time the
// engine itself reported, not the caller's wall clock.
func (r *Recorder) RecordTranscription(audioMillis, engineMillis float64) {
	if r == nil {
		return
	}
	r.totalTranscriptions.Add(1)
	r.totalAudioMillis.Add(uint64(max(audioMillis, 0)))
	r.totalEngineMillis.Add(uint64(max(engineMillis, 0)))

	r.log.Debug("transcription recorded",
		"audio_ms", audioMillis,
		"engine_ms", engineMillis,
	)
}

// DownloadMetrics accumulates statistics for one asset download.
type DownloadMetrics struct {
	recorder *Recorder
	log      *slog.Logger

	asset   string
	unit    Unit
	started time.Time
	units   int64
	total   int64
	updates int
	closed  atomic.Bool
}

// Unit is what a download's progress counts.
type Unit int

const (
	UnitBytes Unit = iota
	UnitFiles
)

func (u Unit) String() string {
	if u == UnitFiles {
		return "files"
	}
	return "bytes"
}

// StartDownload initialises DownloadMetrics bound to the recorder. Progress
// for the asset is counted in unit.
func (r *Recorder) StartDownload(asset string, unit Unit) *DownloadMetrics {
	if r == nil {
		return nil
	}

	r.totalDownloads.Add(1)
	r.activeDownloads.Add(1)

	return &DownloadMetrics{
		recorder: r,
		log:      r.log.With("asset", asset, "unit", unit.String()),
		asset:    asset,
		unit:     unit,
		started:  time.Now(),
	}
}

// RecordProgress stores the latest progress update in the download's Unit.
func (m *DownloadMetrics) RecordProgress(downloaded, total int64) {
	if m == nil {
		return
	}
	m.units = downloaded
	m.total = total
	m.updates++
}

// Finish logs a summary and updates the totals. Only the first call counts.
func (m *DownloadMetrics) Finish(err error) {
	if m == nil {
		return
	}
	if !m.closed.CompareAndSwap(false, true) {
		return
	}

	defer m.recorder.activeDownloads.Add(-1)

	args := []any{
		"duration_ms", time.Since(m.started).Milliseconds(),
		"units", m.units,
		"total", m.total,
		"updates", m.updates,
	}

	if err != nil {
		m.recorder.failedDownloads.Add(1)
		m.log.Error("download failed", append(args, "error", err)...)
		return
	}

	done := uint64(max(m.units, 0))
	if m.unit == UnitFiles {
		m.recorder.totalFiles.Add(done)
	} else {
		m.recorder.totalBytes.Add(done)
	}
	m.log.Info("download completed", args...)
}
