package models

import (
	"fmt"
	"io"
	"math"

	"github.com/charmbracelet/bubbles/progress"
)

// Progress reports how far a download has come. Units are bytes for the
// model file and completed files for the encoder tree, whose total byte size
// is only known once every subdirectory has been listed.
type Progress struct {
	Downloaded int64
	Total      int64
	// Percent is round(Downloaded/Total*100) clamped to [0, 100]; 0 while Total is unknown.
	Percent int
}

// ProgressFunc receives progress updates on the downloading goroutine.
type ProgressFunc func(Progress)

func newProgress(downloaded, total int64) Progress {
	p := Progress{Downloaded: downloaded, Total: total}
	if total > 0 {
		p.Percent = int(math.Round(float64(downloaded) / float64(total) * 100))
		p.Percent = min(max(p.Percent, 0), 100)
	}
	return p
}

// Indicator writes a single-line progress display, redrawn with a carriage
// return after every update.
type Indicator struct {
	out io.Writer
	bar progress.Model
}

// NewIndicator returns an Indicator writing to out. A nil writer discards output.
func NewIndicator(out io.Writer) *Indicator {
	if out == nil {
		out = io.Discard
	}
	return &Indicator{
		out: out,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(30),
			progress.WithoutPercentage(),
		),
	}
}

// Bytes renders a byte-based update.
func (i *Indicator) Bytes(p Progress) {
	if i == nil {
		return
	}
	fmt.Fprintf(i.out, "\r%s Progress: %d%% (%s/%s)", i.view(p), p.Percent, FormatBytes(p.Downloaded), FormatBytes(p.Total))
}

// Files renders a file-count update.
func (i *Indicator) Files(p Progress) {
	if i == nil {
		return
	}
	fmt.Fprintf(i.out, "\r%s Progress: %d%% (%d/%d files)", i.view(p), p.Percent, p.Downloaded, p.Total)
}

// Done terminates the progress line.
func (i *Indicator) Done() {
	if i == nil {
		return
	}
	fmt.Fprintln(i.out)
}

func (i *Indicator) view(p Progress) string {
	return i.bar.ViewAs(float64(p.Percent) / 100)
}
