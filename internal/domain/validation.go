package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidID = errors.New("invalid crash id")

// ValidateID rejects ids that cannot name an artifact inside the artifact
// directory: empty or over-long ids, "." and "..", path separators and NUL.
// Any other name, dots included, is a valid id.
func ValidateID(id string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: empty", ErrInvalidID)
	case len(id) > MaxIDLength:
		return fmt.Errorf("%w: max length %d", ErrInvalidID, MaxIDLength)
	case id == "." || id == "..":
		return fmt.Errorf("%w: dot segment", ErrInvalidID)
	case strings.ContainsAny(id, "/\\\x00"):
		return fmt.Errorf("%w: path separator", ErrInvalidID)
	}
	return nil
}
