package monitor

import "strings"

const (
	minLabel = 3
	maxLabel = 32
)

// cleanLabel trims the label and reports whether it is 3 to 32 characters
// of letters, digits, spaces, underscores and hyphens.
func cleanLabel(label string) (string, bool) {
	label = strings.TrimSpace(label)
	if len(label) < minLabel || len(label) > maxLabel {
		return "", false
	}
	for i := 0; i < len(label); i++ {
		if !labelChar(label[i]) {
			return "", false
		}
	}
	return label, true
}

func labelChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == ' ', c == '_', c == '-':
		return true
	}
	return false
}
