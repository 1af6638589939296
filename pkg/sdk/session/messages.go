package session

import "errors"

// FallbackMessage is shown for unclassified failures.
const FallbackMessage = "An error occurred. Please try again."

var messages = map[string]string{
	// bridge codes
	"auth/email-already-exists": "An account with this email already exists.",
	"auth/registration-failed":  "Failed to create account. Please try again.",
	"auth/login-failed":         "Failed to sign in. Please try again.",
	"auth/google-auth-failed":   "Failed to sign in with Google",
	"auth/unauthenticated":      "Your session has expired. Please sign in again.",
	"auth/forbidden":            "You do not have permission to access this page.",
	"auth/user-not-found":       "No user found with this email address.",
	"auth/invalid-request":      "Please fill in all required fields.",
	"auth/internal-error":       FallbackMessage,

	// identity authority codes
	"auth/email-already-in-use":                     "An account with this email already exists.",
	"auth/invalid-email":                            "Please enter a valid email address.",
	"auth/weak-password":                            "Password should be at least 6 characters.",
	"auth/operation-not-allowed":                    "Email/password accounts are not enabled.",
	"auth/wrong-password":                           "Incorrect password. Please try again.",
	"auth/too-many-requests":                        "Too many failed attempts. Please try again later.",
	"auth/user-disabled":                            "This account has been disabled.",
	"auth/account-exists-with-different-credential": "An account already exists with the same email but different sign-in credentials.",
	"auth/popup-closed-by-user":                     "",
}

// MessageFor returns the user-facing text for a failure code. An empty
// string means nothing should be shown.
func MessageFor(code string) string {
	if msg, ok := messages[code]; ok {
		return msg
	}
	return FallbackMessage
}

// Message picks the text for err. Coded failures without a table entry use
// the server's message, which carries the provider's reason for identity
// creation failures. Uncoded failures, such as a proxy error page, get the
// fallback.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return FallbackMessage
	}
	if apiErr.Code == "" {
		return FallbackMessage
	}
	if msg, ok := messages[apiErr.Code]; ok {
		return msg
	}
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return FallbackMessage
}
