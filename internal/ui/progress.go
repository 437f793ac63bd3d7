package ui

import (
	"fmt"
	"io"
	"strings"
)

const progressWidth = 30

// ProgressBar renders a single-line "[███░░░] n/total" bar.
type ProgressBar struct {
	w       io.Writer
	total   int
	current int
}

func NewProgressBar(w io.Writer, total int) *ProgressBar {
	return &ProgressBar{w: w, total: total}
}

func (pb *ProgressBar) Update(current int) {
	pb.current = current
	fmt.Fprintf(pb.w, "\r   %s", pb.String())
}

// String returns the bar without the carriage return.
func (pb *ProgressBar) String() string {
	percent := 100.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total) * 100
	}
	filled := int(float64(progressWidth) * percent / 100)
	if filled > progressWidth {
		filled = progressWidth
	}

	bar := strings.Repeat("█", filled) + strings.Repeat("░", progressWidth-filled)
	return fmt.Sprintf("[%s] %d/%d (%.1f%%)", bar, pb.current, pb.total, percent)
}

func (pb *ProgressBar) Finish() {
	fmt.Fprintln(pb.w)
}
