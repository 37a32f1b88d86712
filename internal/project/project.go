// Package project holds the canonical in-memory submission type that every
// ingestion path (multipart, zip, JSON stream) normalizes into, and the error
// kinds returned across the ingestion/validation/orchestration boundary.
package project

import (
	"errors"
	"fmt"
)

// Kind tags the variant a FileContent carries.
type Kind int

const (
	// KindText is UTF-8 source content, eligible for root detection.
	KindText Kind = iota
	// KindBinary is opaque bytes (images, fonts, precompiled assets).
	KindBinary
	// KindHashRef is a reference to a blob already known to the owning
	// session's BlobStore. Only valid inside a streaming session.
	KindHashRef
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindHashRef:
		return "hash_ref"
	default:
		return "unknown"
	}
}

// FileContent is the tagged variant described in the data model: exactly one
// of Bytes (Text/Binary) or Hash (HashRef) is meaningful, selected by Kind.
type FileContent struct {
	Kind  Kind
	Bytes []byte
	Hash  uint64
}

// Text constructs a KindText FileContent.
func Text(b []byte) FileContent { return FileContent{Kind: KindText, Bytes: b} }

// Binary constructs a KindBinary FileContent.
func Binary(b []byte) FileContent { return FileContent{Kind: KindBinary, Bytes: b} }

// HashRef constructs a KindHashRef FileContent referencing a session blob.
func HashRef(hash uint64) FileContent { return FileContent{Kind: KindHashRef, Hash: hash} }

// Project is a submission unit: a set of uniquely named files plus an
// optional preferred root. It is immutable once built by ingestion.
type Project struct {
	RootName string
	Files    map[string]FileContent
}

// New returns an empty Project ready to be populated by an ingestion path.
func New() *Project {
	return &Project{Files: make(map[string]FileContent)}
}

// Size returns the total decoded byte size across all non-HashRef files.
// HashRef entries are sized by the caller once resolved against a BlobStore.
func (p *Project) Size() int64 {
	var total int64
	for _, f := range p.Files {
		if f.Kind != KindHashRef {
			total += int64(len(f.Bytes))
		}
	}
	return total
}

// Error kinds classify a failed compile or validation. Each is a sentinel
// so callers can use errors.Is.
var (
	ErrInvalidPath     = errors.New("invalid_path")
	ErrNoFiles          = errors.New("no_files")
	ErrNoRootFound      = errors.New("no_root_found")
	ErrUnresolvedBlob   = errors.New("unresolved_blob")
	ErrProjectTooLarge  = errors.New("project_too_large")
	ErrValidationFailed = errors.New("validation_failed")
	ErrEngineError      = errors.New("engine_error")
	ErrTimedOut        = errors.New("timed_out")
	ErrOverloaded      = errors.New("overloaded")
	ErrCancelled       = errors.New("cancelled")
)

// KindError pairs a sentinel error kind with a human-readable detail message,
// letting handlers recover both the HTTP-mappable kind and diagnostic text.
type KindError struct {
	Kind    error
	Message string
}

func (e *KindError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Message
}

func (e *KindError) Unwrap() error { return e.Kind }

// Wrap builds a KindError from a sentinel kind and a formatted detail.
func Wrap(kind error, format string, args ...any) error {
	msg := format
	if len(args) > 0 {
		msg = fmt.Sprintf(format, args...)
	}
	return &KindError{Kind: kind, Message: msg}
}
