package auth

import (
	"errors"
	"strings"
)

// BearerPrefix is the only accepted Authorization scheme.
const BearerPrefix = "Bearer "

var (
	// ErrMissingBearer is returned when the Authorization header is absent or
	// does not have the "Bearer <token>" shape.
	ErrMissingBearer = errors.New("missing bearer token")
)

// ExtractBearer returns the token part of an Authorization header value.
// The scheme is matched case-sensitively, as clients send it.
func ExtractBearer(header string) (string, error) {
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", ErrMissingBearer
	}
	token := strings.TrimSpace(header[len(BearerPrefix):])
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMissingBearer
	}
	return token, nil
}
