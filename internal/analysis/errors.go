package analysis

import (
	"errors"
	"strings"
)

// ErrFatal marks per-item failures that will not heal on retry: missing,
// unreadable, or structurally broken input files.
var ErrFatal = errors.New("fatal analysis error")

// IsFatal reports whether err carries the fatal marker.
func IsFatal(err error) bool {
	return errors.Is(err, ErrFatal)
}

// fatalPatterns are case-insensitive substrings of error text that indicate a
// non-transient per-file condition.
var fatalPatterns = []string{
	"file not found",
	"permission denied",
	"corrupted",
	"invalid format",
	"unsupported format",
	"file is empty",
	"access denied",
}

// LooksFatal reports whether the error message matches a known
// non-transient pattern.
func LooksFatal(message string) bool {
	lowered := strings.ToLower(message)
	for _, pattern := range fatalPatterns {
		if strings.Contains(lowered, pattern) {
			return true
		}
	}
	return false
}
