package refinement

import (
	"strings"

	"github.com/xrash/smetrics"
)

// Similarity is the normalised Levenshtein similarity of a and b in [0,1].
// Two empty strings are identical. Distance is counted over bytes, so a
// multi-byte rune differing costs more than one edit.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	maxLen := max(len(a), len(b))
	if maxLen == 0 {
		return 1
	}
	dist := smetrics.WagnerFischer(a, b, 1, 1, 1)
	return 1 - float64(dist)/float64(maxLen)
}

// ChangeRatio is how much of initial the clinician rewrote: 0 for no
// change, 1 when exactly one side is empty.
func ChangeRatio(initial, modified string) float64 {
	initial = strings.TrimSpace(initial)
	modified = strings.TrimSpace(modified)
	switch {
	case initial == "" && modified == "":
		return 0
	case initial == "" || modified == "":
		return 1
	}
	return 1 - Similarity(initial, modified)
}
