package models

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/makepost/corenote/internal/apperr"
)

// Validate reports whether the note is safe to persist or delete.
// The returned error wraps apperr.ErrInvalidNote.
func (n Note) Validate() error {
	err := validation.ValidateStruct(&n,
		validation.Field(&n.CreatedAt, validation.Required, validation.Min(int64(1))),
		validation.Field(&n.Dir, validation.Required, validation.By(safeDir)),
		validation.Field(&n.Value, validation.By(plainText)),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrInvalidNote, err)
	}
	return nil
}

// ValidateAll validates a batch and names the first offending element.
func ValidateAll(notes []Note) error {
	for i, n := range notes {
		if err := n.Validate(); err != nil {
			return fmt.Errorf("note %d: %w", i, err)
		}
	}
	return nil
}

func safeDir(value interface{}) error {
	dir, _ := value.(string)
	switch {
	case strings.HasPrefix(dir, ".") || strings.HasSuffix(dir, "."):
		return errors.New("must not start or end with a dot")
	case hasDotComponent(dir):
		return errors.New("must not contain a dot path component")
	case strings.HasPrefix(dir, "/") || strings.HasSuffix(dir, "/"):
		return errors.New("must not start or end with a separator")
	case strings.Contains(dir, "//"):
		return errors.New("must not contain empty path components")
	case strings.ContainsRune(dir, 0):
		return errors.New("must not contain NUL")
	case !utf8.ValidString(dir):
		return errors.New("must be valid UTF-8")
	}
	return nil
}

func hasDotComponent(dir string) bool {
	for _, sep := range []string{"/", `\`} {
		if strings.Contains(dir, "."+sep) || strings.Contains(dir, sep+".") {
			return true
		}
	}
	return false
}

func plainText(value interface{}) error {
	s, _ := value.(string)
	if !utf8.ValidString(s) || strings.ContainsRune(s, 0) {
		return errors.New("must be plain text")
	}
	return nil
}
