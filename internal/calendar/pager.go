package calendar

import (
	"time"

	"turnos/internal/model"
)

const (
	// DefaultTotalPages covers ten years of months.
	DefaultTotalPages = 120
)

// DefaultAnchor is page zero of the pager unless configured otherwise.
var DefaultAnchor = Month{Year: 2025, Month: time.October}

// Pager maps page indexes in [0, TotalPages) to months starting at an anchor.
// It is immutable and safe for concurrent use.
type Pager struct {
	anchor     Month
	totalPages int
}

// NewPager builds a pager. totalPages below 1 is treated as 1.
func NewPager(anchor Month, totalPages int) Pager {
	if totalPages < 1 {
		totalPages = 1
	}
	return Pager{anchor: anchor, totalPages: totalPages}
}

func (p Pager) Anchor() Month   { return p.anchor }
func (p Pager) TotalPages() int { return p.totalPages }

// Clamp pins page into [0, TotalPages).
func (p Pager) Clamp(page int) int {
	if page < 0 {
		return 0
	}
	if page >= p.totalPages {
		return p.totalPages - 1
	}
	return page
}

// ResolveMonth returns anchor + page months, with page clamped.
func (p Pager) ResolveMonth(page int) Month {
	return p.anchor.AddMonths(p.Clamp(page))
}

// InitialPageFor returns the page whose month contains d, clamped.
func (p Pager) InitialPageFor(d model.Date) int {
	return p.Clamp(p.anchor.MonthsUntil(MonthOf(d)))
}
