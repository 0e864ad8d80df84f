package ui

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
)

// Progress reports pagination progress one line per page
type Progress struct {
	Total     int
	Pages     int
	StartTime time.Time
}

// NewProgress creates a new progress tracker
func NewProgress() *Progress {
	return &Progress{
		StartTime: time.Now(),
	}
}

// Page records a fetched page and prints the running total
func (p *Progress) Page(records int) {
	p.Pages++
	p.Total += records
	Println(fmt.Sprintf("Fetched %s posts so far...", FormatCount(p.Total)))
}

// Elapsed returns the time since tracking started
func (p *Progress) Elapsed() time.Duration {
	return time.Since(p.StartTime)
}

// Rate returns posts fetched per second
func (p *Progress) Rate() float64 {
	elapsed := p.Elapsed().Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.Total) / elapsed
}

// Summary describes the finished fetch
func (p *Progress) Summary() string {
	return fmt.Sprintf("%s posts in %s pages (%s)",
		FormatCount(p.Total), FormatCount(p.Pages), p.Elapsed().Round(time.Millisecond))
}

// FormatCount renders n with thousands separators
func FormatCount(n int) string {
	return humanize.Comma(int64(n))
}

// FormatBytes renders a byte size for humans
func FormatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.Bytes(uint64(n))
}

// FormatAge renders how long ago t was
func FormatAge(t time.Time) string {
	return humanize.Time(t)
}
