package command

import (
	"errors"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ErrKind classifies command and action failures for status-bar rendering
// and for the retry policy.
type ErrKind string

const (
	KindUnknownVerb        ErrKind = "unknown_verb"
	KindMissingArg         ErrKind = "missing_arg"
	KindBadArg             ErrKind = "bad_arg"
	KindWrongKindForAction ErrKind = "wrong_kind"
	KindNoSelection        ErrKind = "no_selection"
	KindReadOnlyBlocked    ErrKind = "readonly_blocked"
	KindActionBusy         ErrKind = "action_busy"
	KindNotFound           ErrKind = "not_found"
	KindForbidden          ErrKind = "forbidden"
	KindTimeout            ErrKind = "timeout"
	KindTransient          ErrKind = "transient"
	KindInternal           ErrKind = "internal"
)

// Error is a classified command error.
type Error struct {
	Kind   ErrKind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return string(e.Kind)
	}
	return e.Detail
}

// Errf creates a classified error with a formatted detail message.
func Errf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// KindOf extracts the classification from an error chain. Cluster errors
// from client-go classify via apimachinery helpers; connection-level errors
// classify as transient.
func KindOf(err error) ErrKind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if apierrors.IsForbidden(err) || apierrors.IsUnauthorized(err) {
		return KindForbidden
	}
	if apierrors.IsNotFound(err) {
		return KindNotFound
	}
	if apierrors.IsTimeout(err) || apierrors.IsServerTimeout(err) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "context deadline exceeded"),
		strings.Contains(msg, "i/o timeout"):
		return KindTimeout
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"),
		strings.Contains(msg, "dial tcp"),
		strings.Contains(msg, "connection reset"):
		return KindTransient
	}
	return KindInternal
}

// IsVersionTooOld reports whether a watch stream died because the resource
// version fell out of the server's window; the session must relist.
func IsVersionTooOld(err error) bool {
	if err == nil {
		return false
	}
	if apierrors.IsResourceExpired(err) || apierrors.IsGone(err) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "too old resource version") ||
		strings.Contains(msg, "resourceversion") && strings.Contains(msg, "expired")
}
