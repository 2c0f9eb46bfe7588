// Package apperror defines the failure taxonomy shared by the transport,
// façade, and application layers of the GymDesk client.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknownServer Kind = iota
	KindAuth
	KindTokenExpired
	KindAuthorization
	KindValidation
	KindConflict
	KindNetwork
)

// String returns the stable logging label for the kind.
func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindTokenExpired:
		return "token_expired"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNetwork:
		return "network"
	default:
		return "unknown_server"
	}
}

var (
	// ErrAuth matches rejected login or registration credentials.
	ErrAuth = &Error{Kind: KindAuth}
	// ErrTokenExpired matches a 401 that could not be recovered by the single refresh attempt.
	ErrTokenExpired = &Error{Kind: KindTokenExpired}
	// ErrAuthorization matches operations the server refused for lack of privilege.
	ErrAuthorization = &Error{Kind: KindAuthorization}
	// ErrValidation matches malformed create payloads.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrConflict matches a slot that was no longer available at creation time.
	ErrConflict = &Error{Kind: KindConflict}
	// ErrNetwork matches transport failures.
	ErrNetwork = &Error{Kind: KindNetwork}
	// ErrUnknownServer matches any other non-success response.
	ErrUnknownServer = &Error{Kind: KindUnknownServer}
)

// Error is a classified failure carrying a human readable message.
type Error struct {
	Kind    Kind
	Op      string
	Status  int
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	message := e.Message
	if message == "" && e.Err != nil {
		message = e.Err.Error()
	}
	if message == "" {
		message = e.Kind.String()
	}
	if e.Op == "" {
		return message
	}
	return e.Op + ": " + message
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same kind, which lets the package sentinels
// be used with errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) || e == nil || other == nil {
		return false
	}
	return e.Kind == other.Kind
}

// New builds a classified error.
func New(kind Kind, op string, status int, message string) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Message: message}
}

// Network wraps a transport failure.
func Network(op string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Message: fmt.Sprintf("request failed: %v", err), Err: err}
}

// WithKind returns a copy of err reclassified as kind. Errors that are not
// *Error are wrapped as the cause.
func WithKind(err error, kind Kind) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		clone := *appErr
		clone.Kind = kind
		return &clone
	}
	return &Error{Kind: kind, Err: err}
}

// KindOf reports the kind of err, or KindUnknownServer when it is unclassified.
func KindOf(err error) Kind {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknownServer
}

// Label maps err to a stable logging label. It returns an empty string for nil.
func Label(err error) string {
	if err == nil {
		return ""
	}
	var appErr *Error
	var vErr *ValidationError
	if !errors.As(err, &appErr) && !errors.As(err, &vErr) {
		return "unexpected"
	}
	return KindOf(err).String()
}

// StatusKind maps an HTTP status onto the taxonomy. authenticated reports
// whether the request carried a bearer credential.
func StatusKind(status int, authenticated bool) Kind {
	switch status {
	case http.StatusUnauthorized:
		if authenticated {
			return KindTokenExpired
		}
		return KindAuth
	case http.StatusForbidden:
		return KindAuthorization
	case http.StatusConflict:
		return KindConflict
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return KindValidation
	default:
		return KindUnknownServer
	}
}

// StatusMessage renders the fallback message used when the server provides none.
func StatusMessage(status int) string {
	text := http.StatusText(status)
	if text == "" {
		return fmt.Sprintf("HTTP %d", status)
	}
	return fmt.Sprintf("%d %s", status, strings.TrimSpace(text))
}

// ValidationError captures field level validation issues that callers can surface to users.
type ValidationError struct {
	Op          string
	FieldErrors map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil {
		return ""
	}
	prefix := "validation failed"
	if v.Op != "" {
		prefix = v.Op + ": " + prefix
	}
	if len(v.FieldErrors) == 0 {
		return prefix
	}
	return prefix + ": " + strings.Join(v.sortedMessages(), "; ")
}

// Is lets ValidationError match ErrValidation.
func (v *ValidationError) Is(target error) bool {
	var other *Error
	return errors.As(target, &other) && other.Kind == KindValidation
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.FieldErrors) > 0
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.FieldErrors == nil {
		v.FieldErrors = make(map[string]string)
	}
	v.FieldErrors[field] = message
}

func (v *ValidationError) sortedMessages() []string {
	fields := make([]string, 0, len(v.FieldErrors))
	for field := range v.FieldErrors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	out := make([]string, 0, len(fields))
	for _, field := range fields {
		out = append(out, v.FieldErrors[field])
	}
	return out
}
