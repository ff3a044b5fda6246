package refinement

import "strings"

// MaxInstructions caps every learned instruction list.
const MaxInstructions = 10

// DedupeInstructions trims entries, drops empties and case-insensitive
// duplicates (first occurrence wins), then truncates to MaxInstructions.
func DedupeInstructions(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, s)
	}
	if len(out) > MaxInstructions {
		out = out[:MaxInstructions]
	}
	return out
}
