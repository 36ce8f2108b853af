// Package names validates collection identifiers against the grammar in
// spec §6: this is the "external collaborator" spec.md calls out, kept
// in-repo as an internal package so the module is self-contained.
package names

import (
	"errors"
)

// ErrInvalidName is returned when a collection name fails the grammar.
var ErrInvalidName = errors.New("liekodb: invalid collection name")

// Valid reports whether name satisfies: 1-64 characters from
// [A-Za-z0-9_-], first character [A-Za-z]. Restricting to that charset
// also rules out '.', '/', '\\', leading '.', whitespace, and <>:"|?*,
// all of which the grammar separately forbids.
func Valid(name string) bool {
	if len(name) == 0 || len(name) > 64 {
		return false
	}
	if !isAlpha(name[0]) {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if !isAlpha(c) && !isDigit(c) && c != '_' && c != '-' {
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// Check returns ErrInvalidName if name does not satisfy Valid.
func Check(name string) error {
	if !Valid(name) {
		return ErrInvalidName
	}
	return nil
}
