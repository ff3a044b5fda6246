// Package format renders extracted key points into the textual shape a
// field asks for. Every function here is pure.
package format

import (
	"regexp"
	"strconv"
	"strings"
)

// Style is the presentation of a field's content.
type Style string

const (
	StyleBullet             Style = "bullet"
	StyleNumbered           Style = "numbered"
	StyleNarrative          Style = "narrative"
	StyleHeadingWithBullets Style = "heading_with_bullets"
	StyleLabValues          Style = "lab_values"
	StyleNone               Style = "none"
)

// DefaultBulletChar is used when a bullet schema does not name its own character.
const DefaultBulletChar = "•"

// Schema is the per-field output format.
type Schema struct {
	Type       Style  `json:"type" yaml:"type"`
	BulletChar string `json:"bullet_char,omitempty" yaml:"bullet_char,omitempty"`
}

// IsNarrative reports whether s asks for a single paragraph.
func (s *Schema) IsNarrative() bool {
	return s != nil && s.Type == StyleNarrative
}

// Bullet returns the bullet character for s, falling back to DefaultBulletChar.
func (s *Schema) Bullet() string {
	if s == nil || strings.TrimSpace(s.BulletChar) == "" {
		return DefaultBulletChar
	}
	return strings.TrimSpace(s.BulletChar)
}

var (
	numberPrefix = regexp.MustCompile(`^\d+\.\s+`)
	bulletMarks  = []string{"•", "-", "*"}
)

// Format joins points according to schema. A nil schema, or one of type
// none, joins with newlines and no prefix.
func Format(points []string, schema *Schema) string {
	clean := compact(points)
	if len(clean) == 0 {
		return ""
	}

	style := StyleNone
	if schema != nil && schema.Type != "" {
		style = schema.Type
	}

	switch style {
	case StyleBullet, StyleHeadingWithBullets, StyleLabValues:
		char := schema.Bullet()
		out := make([]string, len(clean))
		for i, p := range clean {
			out[i] = char + " " + StripBullet(p, char)
		}
		return strings.Join(out, "\n")

	case StyleNumbered:
		out := make([]string, len(clean))
		for i, p := range clean {
			out[i] = strconv.Itoa(i+1) + ". " + StripNumber(p)
		}
		return strings.Join(out, "\n")

	case StyleNarrative:
		return strings.Join(clean, " ")

	default:
		return strings.Join(clean, "\n")
	}
}

// ParsePoints splits formatted text back into bare points, removing the
// markers Format would have added.
func ParsePoints(text string, schema *Schema) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if schema.IsNarrative() {
		return []string{text}
	}

	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if schema != nil {
			switch schema.Type {
			case StyleNumbered:
				line = StripNumber(line)
			case StyleBullet, StyleHeadingWithBullets, StyleLabValues:
				line = StripBullet(line, schema.Bullet())
			}
		}
		if line != "" {
			points = append(points, line)
		}
	}
	return points
}

// NumberedFromText converts free text into a numbered list: every non-empty
// line loses any bullet or number marker and is renumbered from 1.
func NumberedFromText(text string) string {
	var points []string
	for _, line := range strings.Split(text, "\n") {
		line = StripNumber(StripBullet(strings.TrimSpace(line), ""))
		if line != "" {
			points = append(points, line)
		}
	}
	return Format(points, &Schema{Type: StyleNumbered})
}

// StripBullet removes leading bullet markers ("•", "-", "*" and extra, if set).
func StripBullet(point, extra string) string {
	p := strings.TrimSpace(point)
	for {
		trimmed := false
		for _, m := range bulletMarks {
			if strings.HasPrefix(p, m) {
				p = strings.TrimSpace(strings.TrimPrefix(p, m))
				trimmed = true
			}
		}
		if extra != "" && strings.HasPrefix(p, extra) {
			p = strings.TrimSpace(strings.TrimPrefix(p, extra))
			trimmed = true
		}
		if !trimmed {
			return p
		}
	}
}

// StripNumber removes a leading "<digits>. " marker.
func StripNumber(point string) string {
	p := strings.TrimSpace(point)
	return strings.TrimSpace(numberPrefix.ReplaceAllString(p, ""))
}

func compact(points []string) []string {
	out := make([]string, 0, len(points))
	for _, p := range points {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
