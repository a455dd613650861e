package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a per-event failure for the response status code.
type Kind int

const (
	KindAuthFailed Kind = iota
	KindNoSuchRoom
	KindAlreadyExists
	KindAclDenied
	KindNotOwner
	KindNotMember
	KindBadRequest
	KindTransient
	KindFatal
)

// Status maps a kind onto the http-like response code: 4xx for validation
// and access failures, 5xx for backend failures.
func (k Kind) Status() int {
	switch k {
	case KindAuthFailed:
		return 401
	case KindAclDenied, KindNotOwner:
		return 403
	case KindNoSuchRoom:
		return 404
	case KindAlreadyExists:
		return 409
	case KindNotMember, KindBadRequest:
		return 400
	default:
		return 500
	}
}

// Error is a per-event failure carrying its kind.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string {
	return e.Reason
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// fail renders any error as a response event. Unclassified errors count as
// transient backend failures.
func fail(err error) Response {
	var perr *Error
	if errors.As(err, &perr) {
		return Response{Status: perr.Kind.Status(), Reason: perr.Reason}
	}
	return Response{Status: KindTransient.Status(), Reason: err.Error()}
}
