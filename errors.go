package verbump

import (
	"errors"
	"fmt"
)

// Kind classifies a decision failure.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindNotReleaseBranch: the branch is absent from the release branch table.
	KindNotReleaseBranch
	// KindInvalidTransition: the pre-release lifecycle forbids the step.
	KindInvalidTransition
	// KindUnusualFirstRelease: the manifest version is not a recognised
	// starting point for a first release.
	KindUnusualFirstRelease
	// KindVersionMismatch: manifest and latest tag disagree.
	KindVersionMismatch
	// KindMalformedVersion: a version string could not be parsed.
	KindMalformedVersion
	// KindManifestFieldMissing: the manifest carries no version field.
	KindManifestFieldMissing
	// KindCollaboratorUnavailable: a repository query failed.
	KindCollaboratorUnavailable
	// KindInternal indicates a bug.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNotReleaseBranch:
		return "not_release_branch"
	case KindInvalidTransition:
		return "invalid_lifecycle_transition"
	case KindUnusualFirstRelease:
		return "unusual_first_release_version"
	case KindVersionMismatch:
		return "version_tag_mismatch"
	case KindMalformedVersion:
		return "malformed_version"
	case KindManifestFieldMissing:
		return "manifest_field_missing"
	case KindCollaboratorUnavailable:
		return "collaborator_unavailable"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the error type returned by this package.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
	Details map[string]any
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so sentinels like ErrNotReleaseBranch
// work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// WithDetail attaches a key/value pair of context and returns e.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Sentinels for errors.Is.
var (
	ErrNotReleaseBranch        = &Error{Kind: KindNotReleaseBranch}
	ErrInvalidTransition       = &Error{Kind: KindInvalidTransition}
	ErrUnusualFirstRelease     = &Error{Kind: KindUnusualFirstRelease}
	ErrVersionMismatch         = &Error{Kind: KindVersionMismatch}
	ErrMalformedVersion        = &Error{Kind: KindMalformedVersion}
	ErrManifestFieldMissing    = &Error{Kind: KindManifestFieldMissing}
	ErrCollaboratorUnavailable = &Error{Kind: KindCollaboratorUnavailable}
)

func newError(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

func wrapError(err error, kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// GetKind returns the Kind of err, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	return GetKind(err) == kind
}
