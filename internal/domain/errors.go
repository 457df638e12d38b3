package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidImage is returned when uploaded bytes are not a decodable image.
	ErrInvalidImage = errors.New("invalid image")
	// ErrDuplicate is returned when identical image bytes are already indexed.
	ErrDuplicate = errors.New("meme already saved")
	// ErrMalformedQuery is returned for queries that cannot be tokenized.
	ErrMalformedQuery = errors.New("malformed query")
	// ErrInvalidConfirmation is returned when a confirmation token is missing, forged or stale.
	ErrInvalidConfirmation = errors.New("invalid or expired confirmation")
)

// ExtractionError reports that the tag extractor could not produce text after retries.
type ExtractionError struct {
	MemeID   string
	Attempts int
	Err      error
}

func (e *ExtractionError) Error() string {
	if e.MemeID != "" {
		return fmt.Sprintf("tag extraction failed for meme %s after %d attempt(s): %v", e.MemeID, e.Attempts, e.Err)
	}
	return fmt.Sprintf("tag extraction failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// StorageIOError reports a failed asset store operation.
type StorageIOError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// NotFoundError reports an unknown meme id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("meme %s not found", e.ID)
}

// VerificationReason classifies why a signed reference was rejected.
type VerificationReason string

const (
	ReasonMalformed    VerificationReason = "malformed"
	ReasonBadSignature VerificationReason = "bad signature"
	ReasonExpired      VerificationReason = "expired"
	ReasonNotFound     VerificationReason = "not found"
)

// VerificationError reports a rejected signed reference.
type VerificationError struct {
	Reason VerificationReason
	Err    error
}

func (e *VerificationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("signed reference rejected (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("signed reference rejected (%s)", e.Reason)
}

func (e *VerificationError) Unwrap() error { return e.Err }

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsExtractionError reports whether err carries an ExtractionError.
func IsExtractionError(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
