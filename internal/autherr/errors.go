// Package autherr defines the failure taxonomy surfaced by the identity
// reconciler and the session gate.
//
// Every failure from a backing service is translated into an *Error at the
// service boundary. The Kind drives the HTTP status and the machine-readable
// Code; the Message is safe to show to clients; the Cause is for logs only.
package autherr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	KindIdentityCreate      Kind = "IdentityCreateError"
	KindEmailAlreadyExists  Kind = "EmailAlreadyExists"
	KindRegistrationFailed  Kind = "RegistrationFailed"
	KindInvalidCredential   Kind = "InvalidCredential"
	KindUnauthenticated     Kind = "Unauthenticated"
	KindForbidden           Kind = "Forbidden"
	KindNotFound            Kind = "NotFound"
	KindFederatedAuthFailed Kind = "FederatedAuthFailed"
	KindInvalidRequest      Kind = "InvalidRequest"
	KindInternal            Kind = "Internal"
)

// Code is the machine-readable code returned to clients.
type Code string

const (
	CodeIdentityCreateFailed Code = "auth/identity-create-failed"
	CodeEmailAlreadyExists   Code = "auth/email-already-exists"
	CodeRegistrationFailed   Code = "auth/registration-failed"
	CodeLoginFailed          Code = "auth/login-failed"
	CodeUnauthenticated      Code = "auth/unauthenticated"
	CodeForbidden            Code = "auth/forbidden"
	CodeUserNotFound         Code = "auth/user-not-found"
	CodeGoogleAuthFailed     Code = "auth/google-auth-failed"
	CodeInvalidRequest       Code = "auth/invalid-request"
	CodeInternal             Code = "auth/internal-error"
)

type kindInfo struct {
	code    Code
	status  int
	message string
}

var kinds = map[Kind]kindInfo{
	KindIdentityCreate:      {CodeIdentityCreateFailed, http.StatusBadRequest, "Identity creation failed"},
	KindEmailAlreadyExists:  {CodeEmailAlreadyExists, http.StatusBadRequest, "Email already exists"},
	KindRegistrationFailed:  {CodeRegistrationFailed, http.StatusBadRequest, "Registration failed"},
	KindInvalidCredential:   {CodeLoginFailed, http.StatusUnauthorized, "Login failed"},
	KindUnauthenticated:     {CodeUnauthenticated, http.StatusUnauthorized, "Unauthorized"},
	KindForbidden:           {CodeForbidden, http.StatusForbidden, "Insufficient permissions"},
	KindNotFound:            {CodeUserNotFound, http.StatusNotFound, "User not found"},
	KindFederatedAuthFailed: {CodeGoogleAuthFailed, http.StatusBadRequest, "Google authentication failed"},
	KindInvalidRequest:      {CodeInvalidRequest, http.StatusBadRequest, "Invalid request"},
	KindInternal:            {CodeInternal, http.StatusInternalServerError, "Internal error"},
}

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string // client-safe message
	Cause   error  // underlying error, never sent to clients
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Message + ": " + e.Cause.Error()
	}
	return string(e.Kind) + ": " + e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error of the same kind, so
// errors.Is(err, autherr.EmailAlreadyExists) works on wrapped errors.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Code returns the machine-readable code for the error's kind.
func (e *Error) Code() Code {
	return kinds[e.Kind].code
}

// HTTPStatus returns the response status for the error's kind.
func (e *Error) HTTPStatus() int {
	if info, ok := kinds[e.Kind]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Kind sentinels for errors.Is.
var (
	IdentityCreateError = &Error{Kind: KindIdentityCreate}
	EmailAlreadyExists  = &Error{Kind: KindEmailAlreadyExists}
	RegistrationFailed  = &Error{Kind: KindRegistrationFailed}
	InvalidCredential   = &Error{Kind: KindInvalidCredential}
	Unauthenticated     = &Error{Kind: KindUnauthenticated}
	Forbidden           = &Error{Kind: KindForbidden}
	NotFound            = &Error{Kind: KindNotFound}
	FederatedAuthFailed = &Error{Kind: KindFederatedAuthFailed}
	InvalidRequest      = &Error{Kind: KindInvalidRequest}
	Internal            = &Error{Kind: KindInternal}
)

// New creates an error of the given kind. An empty message falls back to the
// kind's default message.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = kinds[kind].message
	}
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an error of the given kind around an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	e := New(kind, message)
	e.Cause = cause
	return e
}

// From extracts the classified error from err. Unclassified errors become
// Internal so raw backing-service errors are never exposed.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, "", err)
}
