// Package transcript assembles recognizer fragments into subtitle text.
package transcript

import (
	"sort"
	"strings"

	"github.com/rbright/livesub/internal/domain"
)

// Batch is one recognizer result split into its final and interim parts.
type Batch struct {
	Finals   []domain.Fragment
	Interims []domain.Fragment
	Stale    int
}

// Split partitions fragments, dropping any whose sequence is at or below
// lastFinal. Interims at or below the batch's own highest final are dropped as
// well, since that final is emitted first. Both parts keep recognizer order by
// sequence.
func Split(fragments []domain.Fragment, lastFinal int) Batch {
	var b Batch
	var pending []domain.Fragment
	for _, f := range fragments {
		if f.Sequence <= lastFinal {
			b.Stale++
			continue
		}
		if f.IsFinal {
			b.Finals = append(b.Finals, f)
		} else {
			pending = append(pending, f)
		}
	}
	floor := max(lastFinal, MaxSequence(b.Finals))
	for _, f := range pending {
		if f.Sequence <= floor {
			b.Stale++
			continue
		}
		b.Interims = append(b.Interims, f)
	}
	sort.SliceStable(b.Finals, func(i, j int) bool { return b.Finals[i].Sequence < b.Finals[j].Sequence })
	sort.SliceStable(b.Interims, func(i, j int) bool { return b.Interims[i].Sequence < b.Interims[j].Sequence })
	return b
}

// Join concatenates fragment text and collapses whitespace.
func Join(fragments []domain.Fragment) string {
	if len(fragments) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		parts = append(parts, f.Text)
	}
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

// MaxSequence returns the highest sequence index, or -1 for no fragments.
func MaxSequence(fragments []domain.Fragment) int {
	highest := -1
	for _, f := range fragments {
		if f.Sequence > highest {
			highest = f.Sequence
		}
	}
	return highest
}
