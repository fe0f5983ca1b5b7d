package forum

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/lalith-99/echoforum/internal/models"
)

var (
	// ErrNotFound means the thread, reply or message does not exist where
	// it was looked for.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput wraps every validation failure.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden means the caller may not change the message.
	ErrForbidden = errors.New("forbidden")
)

const (
	maxKeyPartLen  = 256
	maxContentLen  = 10000
	maxBatchIDs    = 100
	defaultPageLen = 20
	maxPageLen     = 100
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// checkKeyPart validates a value that ends up inside a composite key.
// Control characters are rejected since backends join pk and sk with NUL.
func checkKeyPart(name, v string) error {
	switch {
	case v == "":
		return invalid("%s is required", name)
	case len(v) > maxKeyPartLen:
		return invalid("%s longer than %d bytes", name, maxKeyPartLen)
	case strings.Contains(v, "#"):
		return invalid("%s must not contain '#'", name)
	case strings.IndexFunc(v, unicode.IsControl) >= 0:
		return invalid("%s must not contain control characters", name)
	}
	return nil
}

func checkKeyParts(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := checkKeyPart(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// cleanContent trims content and enforces the length limit.
func cleanContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("content is required")
	}
	if utf8.RuneCountInString(content) > maxContentLen {
		return "", invalid("content longer than %d characters", maxContentLen)
	}
	return content, nil
}

func checkAuthor(a models.Author) error {
	if err := checkKeyPart("author id", a.UserID); err != nil {
		return err
	}
	if !a.Role.Valid() {
		return invalid("unknown author role %q", a.Role)
	}
	return nil
}

// pageLimit applies the default and the ceiling to a requested page size.
func pageLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageLen
	case limit > maxPageLen:
		return maxPageLen
	}
	return limit
}
