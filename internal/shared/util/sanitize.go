package util

import (
	"errors"
	"mime"
	"strings"
	"unicode"
)

// SanitizeFileName removes path separators, quotes and control characters and
// rejects traversal patterns.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", errors.New("invalid file name")
	}
	s := strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\':
			return '_'
		case r == '"':
			return '\''
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, strings.TrimSpace(name))
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("invalid file name")
	}
	return s, nil
}

// ContentDisposition builds an attachment header for name, using fallback when name
// cannot be sanitized. Non-ASCII names are emitted in RFC 2231 form.
func ContentDisposition(name, fallback string) string {
	clean, err := SanitizeFileName(name)
	if err != nil {
		clean = fallback
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": clean}); v != "" {
		return v
	}
	return mime.FormatMediaType("attachment", map[string]string{"filename": fallback})
}
