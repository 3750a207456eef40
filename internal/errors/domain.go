package errors

import (
	stderrors "errors"
	"net/http"
)

// Kind classifies a service failure independently of the transport
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidArgument
	KindNotFound
	KindForbidden
	KindConflict
	KindInvalidState
	KindUnauthorized
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindInvalidState:
		return "invalid_state"
	case KindUnauthorized:
		return "unauthorized"
	default:
		return "internal"
	}
}

// DomainError is returned by the service packages. Sentinel values are
// compared with errors.Is; wrap them with fmt.Errorf("%w: ...") to add context.
type DomainError struct {
	Kind    Kind
	Message string
}

// NewDomainError creates a sentinel domain error
func NewDomainError(kind Kind, message string) *DomainError {
	return &DomainError{Kind: kind, Message: message}
}

func (e *DomainError) Error() string {
	return e.Message
}

// KindOf returns the kind of the first DomainError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}

// FromError maps a service error to the API error sent to clients. The
// message of wrapped domain errors is kept so clients see the added context.
func FromError(err error) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var de *DomainError
	if !stderrors.As(err, &de) {
		return ErrInternalServerError
	}

	out := &APIError{Message: err.Error()}
	switch de.Kind {
	case KindInvalidArgument:
		out.Code, out.HTTPStatus = ErrValidationFailed, http.StatusBadRequest
	case KindNotFound:
		out.Code, out.HTTPStatus = ErrNotFound, http.StatusNotFound
	case KindForbidden:
		out.Code, out.HTTPStatus = ErrForbidden, http.StatusForbidden
	case KindConflict:
		out.Code, out.HTTPStatus = ErrConflict, http.StatusConflict
	case KindInvalidState:
		out.Code, out.HTTPStatus = ErrInvalidState, http.StatusConflict
	case KindUnauthorized:
		out.Code, out.HTTPStatus = ErrUnauthorized, http.StatusUnauthorized
	default:
		return ErrInternalServerError
	}
	return out
}
