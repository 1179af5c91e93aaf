package share

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyUpload is returned when a batch contains no files. Nothing is written.
	ErrEmptyUpload = errors.New("no files uploaded")

	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrMalformedKey is returned when a key segment cannot be percent-decoded.
	ErrMalformedKey = errors.New("malformed object key")
)

// UploadError reports a store write failure inside a batch. Writes that succeeded
// before the failure stay live under Group; later files were never attempted.
type UploadError struct {
	Group   GroupID
	File    string   // name of the file whose write failed
	Written []string // names persisted before the failure, in batch order
	Err     error
}

func (e *UploadError) Error() string {
	if len(e.Written) == 0 {
		return fmt.Sprintf("upload %s: write %q: %v", e.Group, e.File, e.Err)
	}
	return fmt.Sprintf("upload %s: write %q after %d stored (%s): %v",
		e.Group, e.File, len(e.Written), strings.Join(e.Written, ", "), e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// Partial reports whether some files of the batch were stored before the failure.
func (e *UploadError) Partial() bool { return len(e.Written) > 0 }

// IsClientError reports whether err should be surfaced as "not found" to the caller.
// Empty batches, malformed keys, bad identifiers and misses are treated alike.
func IsClientError(err error) bool {
	return errors.Is(err, ErrEmptyUpload) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrMalformedKey) ||
		errors.Is(err, ErrInvalidGroupID)
}
