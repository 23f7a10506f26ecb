package dist

import (
	"errors"
	"fmt"
)

var (
	// ErrArchiveCorrupt indicates a malformed or unreadable source archive,
	// including a RECORD manifest that disagrees with the archive entries.
	ErrArchiveCorrupt = errors.New("archive corrupt")

	// ErrMissingRequiredEntry indicates that a tree lacks a descriptor the
	// repacker needs (the .dist-info directory, its WHEEL file or tags).
	ErrMissingRequiredEntry = errors.New("missing required entry")

	// ErrScratchConflict indicates a leftover scratch directory could not be cleared.
	ErrScratchConflict = errors.New("scratch directory conflict")
)

// Error carries one of the sentinel kinds above with operation context.
type Error struct {
	Op     string // Operation that failed, e.g. "unpack"
	Path   string // Archive or entry path if applicable
	Kind   error  // Sentinel error
	Detail string
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Path != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, msg)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

func (e *Error) Unwrap() error {
	return e.Kind
}
