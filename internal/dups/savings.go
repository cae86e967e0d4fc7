package dups

import "github.com/dustin/go-humanize"

// Savings summarizes what resolving every pending group would reclaim.
type Savings struct {
	Groups     int
	Duplicates int
	Bytes      int64
}

// Human returns Bytes formatted for display, e.g. "12 MB".
func (s Savings) Human() string {
	return humanize.Bytes(uint64(s.Bytes))
}

// CalculateSavings counts the non-kept images of every pending group and
// the bytes they occupy.
func CalculateSavings(groups []*DuplicateGroup) Savings {
	var s Savings
	for _, g := range groups {
		if g.State != StatePending {
			continue
		}
		s.Groups++
		for _, img := range g.Others() {
			s.Duplicates++
			s.Bytes += img.Size
		}
	}
	return s
}
