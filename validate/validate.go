package validate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrEmptyBody is returned for empty, whitespace-only or non-UTF-8 input.
var ErrEmptyBody = errors.New("request body must be non-empty utf-8 source")

// DisallowedConstructError reports the first denylisted construct found in the source.
type DisallowedConstructError struct {
	Construct string
}

func (e *DisallowedConstructError) Error() string {
	return fmt.Sprintf("source contains disallowed construct %q", e.Construct)
}

// Filter rejects source that must never reach a sandbox.
type Filter struct {
	denylist []string
}

// NewFilter creates a Filter over the given constructs. Empty entries are ignored.
func NewFilter(denylist []string) *Filter {
	list := make([]string, 0, len(denylist))
	for _, c := range denylist {
		if c != "" {
			list = append(list, c)
		}
	}
	return &Filter{denylist: list}
}

// NonEmpty returns ErrEmptyBody unless code is non-blank UTF-8.
func NonEmpty(code string) error {
	if strings.TrimSpace(code) == "" || !utf8.ValidString(code) {
		return ErrEmptyBody
	}
	return nil
}

// Validate returns nil if code may be compiled.
func (f *Filter) Validate(code string) error {
	if err := NonEmpty(code); err != nil {
		return err
	}
	for _, construct := range f.denylist {
		if strings.Contains(code, construct) {
			return &DisallowedConstructError{Construct: construct}
		}
	}
	return nil
}

// Denylist returns a copy of the configured constructs.
func (f *Filter) Denylist() []string {
	return append([]string(nil), f.denylist...)
}
