// Package validate provides input validation for document mutations.
//
// Validation failures wrap store.ErrValidation so callers can classify them
// with errors.Is; detailed messages name the offending field. Malformed
// input is rejected, never retried.
package validate

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/knostack/knosync/internal/store"
)

// Default limits applied when not configured.
const (
	DefaultMaxTitle   = 512
	DefaultMaxContent = 10 * 1024 * 1024 // 10 MB
)

// Title checks a document title. max 0 applies the default limit.
func Title(title string, max int) error {
	if max <= 0 {
		max = DefaultMaxTitle
	}
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title must not be empty", store.ErrValidation)
	}
	if utf8.RuneCountInString(title) > max {
		return fmt.Errorf("%w: title exceeds %d characters", store.ErrValidation, max)
	}
	return nil
}

// Content checks document content size. max 0 applies the default limit.
func Content(content string, max int64) error {
	if max <= 0 {
		max = DefaultMaxContent
	}
	if int64(len(content)) > max {
		return fmt.Errorf("%w: content exceeds %d bytes", store.ErrValidation, max)
	}
	return nil
}

// Status checks a document status value.
func Status(s store.Status) error {
	if !s.Valid() {
		return fmt.Errorf("%w: unknown status %q", store.ErrValidation, s)
	}
	return nil
}

// Author checks that an author identifier is present.
func Author(author string) error {
	if strings.TrimSpace(author) == "" {
		return fmt.Errorf("%w: author must not be empty", store.ErrValidation)
	}
	return nil
}

// Tags checks tag values for emptiness and duplicates.
func Tags(tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		if strings.TrimSpace(t) == "" {
			return fmt.Errorf("%w: empty tag", store.ErrValidation)
		}
		if _, ok := seen[t]; ok {
			return fmt.Errorf("%w: duplicate tag %q", store.ErrValidation, t)
		}
		seen[t] = struct{}{}
	}
	return nil
}
