package template

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// KeyChecker reports whether a template key is taken.
type KeyChecker func(ctx context.Context, key string) (bool, error)

var (
	versionSuffix = regexp.MustCompile(`^(.*)_(\d+)$`)
	nonKeyChars   = regexp.MustCompile(`[^a-z0-9_]+`)
)

// BaseKey splits key into its base and version number. A key without a
// numeric suffix has version 0.
func BaseKey(key string) (string, int) {
	m := versionSuffix.FindStringSubmatch(key)
	if m == nil {
		return key, 0
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return key, 0
	}
	return m[1], n
}

// NextVersionKey returns the first free key after key's version:
// progress_note_1 becomes progress_note_2, or _3 if _2 is taken.
func NextVersionKey(ctx context.Context, key string, exists KeyChecker) (string, error) {
	base, n := BaseKey(key)
	for v := n + 1; ; v++ {
		candidate := base + "_" + strconv.Itoa(v)
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check key %s: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
}

// KeyFromName lowercases name and replaces spaces with underscores.
// Characters outside [a-z0-9_] are dropped.
func KeyFromName(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.Join(strings.Fields(key), "_")
	return nonKeyChars.ReplaceAllString(key, "")
}

// UniqueKey derives a template key from name that is not yet taken. It tries
// base_1, then base-a_1 through base-z_1, then base_<unix timestamp>.
func UniqueKey(ctx context.Context, name string, exists KeyChecker, now time.Time) (string, error) {
	base := KeyFromName(name)
	if base == "" {
		base = "template"
	}

	candidates := make([]string, 0, 27)
	candidates = append(candidates, base+"_1")
	for c := 'a'; c <= 'z'; c++ {
		candidates = append(candidates, fmt.Sprintf("%s-%c_1", base, c))
	}

	for _, key := range candidates {
		taken, err := exists(ctx, key)
		if err != nil {
			return "", fmt.Errorf("check key %s: %w", key, err)
		}
		if !taken {
			return key, nil
		}
	}
	return base + "_" + strconv.FormatInt(now.Unix(), 10), nil
}
