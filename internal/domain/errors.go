package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrBatchNotFound         = errors.New("batch not found")
	ErrImageNotFound         = errors.New("image not found")
	ErrNodeNotFound          = errors.New("node not found")
	ErrTransformationUnknown = errors.New("transformation unknown")
	ErrMissingField          = errors.New("missing required field")
	ErrInvalidField          = errors.New("invalid field")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrDuplicate             = errors.New("already exists")
	ErrTransformationInUse   = errors.New("transformation is referenced and immutable")
	ErrNothingToDownload     = errors.New("nothing to download")
	ErrNoPhysicalArtifacts   = errors.New("no physical artifacts found")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAccountDisabled       = errors.New("account disabled")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNoActiveNodes         = errors.New("no active nodes")
	ErrTransport             = errors.New("transport failure")
	ErrTranslation           = errors.New("translation failure")
)

// Category groups errors by how callers should react to them.
type Category string

const (
	CategoryValidation    Category = "validation"
	CategoryReference     Category = "reference"
	CategoryConflict      Category = "conflict"
	CategoryTransport     Category = "transport"
	CategoryConsistency   Category = "consistency"
	CategoryAuthorization Category = "authorization"
	CategoryInternal      Category = "internal"
)

// CategoryOf classifies err. Unrecognised errors are internal.
func CategoryOf(err error) Category {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingField),
		errors.Is(err, ErrInvalidField),
		errors.Is(err, ErrInvalidTransition):
		return CategoryValidation
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBatchNotFound),
		errors.Is(err, ErrImageNotFound),
		errors.Is(err, ErrNodeNotFound),
		errors.Is(err, ErrTransformationUnknown),
		errors.Is(err, ErrNothingToDownload):
		return CategoryReference
	case errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrTransformationInUse):
		return CategoryConflict
	case errors.Is(err, ErrTransport),
		errors.Is(err, ErrNoActiveNodes):
		return CategoryTransport
	case errors.Is(err, ErrNoPhysicalArtifacts):
		return CategoryConsistency
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrAccountDisabled),
		errors.Is(err, ErrUnauthorized):
		return CategoryAuthorization
	default:
		return CategoryInternal
	}
}
