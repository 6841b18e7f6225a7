package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

// Kind classifies an ingestion failure.
type Kind string

const (
	// MissingArtifact: an expected file was absent at walk or open time.
	MissingArtifact Kind = "MissingArtifact"
	// CorruptArchive: the compressed container could not be decoded.
	CorruptArchive Kind = "CorruptArchive"
	// UnsupportedFormatEra: no parser variant covers the artifact's congress.
	UnsupportedFormatEra Kind = "UnsupportedFormatEra"
	// ParseFailure: the decoded content did not match its expected structure.
	ParseFailure Kind = "ParseFailure"
	// ResolutionAmbiguous: zero or several bill candidates for a vote.
	ResolutionAmbiguous Kind = "ResolutionAmbiguous"
	// WriteConflict: a concurrent writer changed the record between read and write.
	WriteConflict Kind = "WriteConflict"
	// Timeout: the per-artifact deadline expired.
	Timeout Kind = "Timeout"
	// Internal covers anything unclassified.
	Internal Kind = "Internal"
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New classifies err under kind. A nil err yields an Error with only the kind.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf builds a classified error from a formatted message.
func Newf(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: eris.Errorf(format, args...)}
}

// KindOf returns the classification of err. Deadline expiry maps to Timeout;
// unclassified errors map to Internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if cause := eris.Cause(err); cause != nil && cause != err {
		if errors.As(cause, &e) {
			return e.Kind
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}
	return Internal
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsTransient reports whether err is safe to retry. Only write conflicts
// qualify: every other kind is deterministic for the same input.
func IsTransient(err error) bool {
	return IsKind(err, WriteConflict)
}
