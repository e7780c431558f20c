// Package sanitize reduces user input to plain text before it enters the
// message log.
package sanitize

import (
	"errors"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"telemed-chat/internal/models"
)

var (
	ErrEmpty   = errors.New("text is empty after sanitization")
	ErrTooLong = errors.New("text exceeds maximum length")
)

// The strict policy strips every tag and attribute; entities are unescaped
// afterwards so stored text is plain, not HTML-encoded.
var policy = bluemonday.StrictPolicy()

// Text strips all markup, drops control characters and trims whitespace.
// It returns ErrEmpty when nothing survives and ErrTooLong past the
// configured code-point limit.
func Text(input string) (string, error) {
	clean := html.UnescapeString(policy.Sanitize(input))
	clean = strings.Map(dropControl, clean)
	clean = strings.TrimSpace(clean)

	if clean == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(clean) > models.MaxTextRunes {
		return "", ErrTooLong
	}
	return clean, nil
}

func dropControl(r rune) rune {
	if r == '\n' || r == '\t' {
		return r
	}
	if unicode.IsControl(r) {
		return -1
	}
	return r
}
