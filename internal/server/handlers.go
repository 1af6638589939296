package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/medreach/identitybridge/internal/auth"
	"github.com/medreach/identitybridge/internal/autherr"
	"github.com/medreach/identitybridge/internal/db/models"
	"github.com/medreach/identitybridge/internal/identity"
	"github.com/medreach/identitybridge/internal/respond"
	"github.com/medreach/identitybridge/internal/services/reconciler"
)

const maxBodyBytes = 1 << 20

// identityService is the reconciler contract the handlers depend on.
type identityService interface {
	CanRegister() bool
	Register(ctx context.Context, in reconciler.RegisterInput) (*reconciler.Result, error)
	Login(ctx context.Context, token string) (*reconciler.Result, error)
	FederatedLogin(ctx context.Context, in reconciler.FederatedInput) (*reconciler.Result, error)
	Profile(ctx context.Context, externalID string) (*models.PublicProfile, error)
}

var _ identityService = (*reconciler.Service)(nil)

// SignInAuthority mints assertion tokens from email and password.
type SignInAuthority interface {
	SignIn(ctx context.Context, email, password string) (string, time.Time, error)
}

var _ SignInAuthority = (*identity.LocalAuthority)(nil)

type authResponse struct {
	Message           string               `json:"message"`
	User              models.PublicProfile `json:"user"`
	SessionCredential string               `json:"sessionCredential"`
}

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	Role        string `json:"role"`
	UserType    string `json:"userType"`
	PhoneNumber string `json:"phoneNumber"`
}

type loginRequest struct {
	IDToken string `json:"idToken"`
}

type federatedRequest struct {
	ExternalID  string `json:"externalId"`
	UID         string `json:"uid"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Name        string `json:"name"`
	PhotoURL    string `json:"photoURL"`
	IDToken     string `json:"idToken"`
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signInResponse struct {
	IDToken   string `json:"idToken"`
	ExpiresIn int64  `json:"expiresIn"`
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return autherr.Wrap(autherr.KindInvalidRequest, "Invalid JSON body", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// HandleRegister creates an identity and its profile.
func HandleRegister(svc identityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		result, err := svc.Register(r.Context(), reconciler.RegisterInput{
			Email:       req.Email,
			Password:    req.Password,
			DisplayName: firstNonEmpty(req.DisplayName, req.Name),
			Role:        firstNonEmpty(req.Role, req.UserType),
			PhoneNumber: req.PhoneNumber,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusCreated, authResponse{
			Message:           "User created successfully",
			User:              result.Profile,
			SessionCredential: result.SessionCredential,
		})
	}
}

// HandleLogin exchanges a verified assertion token for a session credential.
func HandleLogin(svc identityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		result, err := svc.Login(r.Context(), req.IDToken)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusOK, authResponse{
			Message:           "Login successful",
			User:              result.Profile,
			SessionCredential: result.SessionCredential,
		})
	}
}

// HandleFederatedLogin handles Google sign-in.
func HandleFederatedLogin(svc identityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req federatedRequest
		if err := decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}

		result, err := svc.FederatedLogin(r.Context(), reconciler.FederatedInput{
			ExternalID:  firstNonEmpty(req.ExternalID, req.UID),
			Email:       req.Email,
			DisplayName: firstNonEmpty(req.DisplayName, req.Name),
			PhotoURL:    req.PhotoURL,
			IDToken:     req.IDToken,
		})
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusOK, authResponse{
			Message:           "Authentication successful",
			User:              result.Profile,
			SessionCredential: result.SessionCredential,
		})
	}
}

// HandleMe returns the authenticated principal's profile.
func HandleMe(svc identityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		if !ok {
			respond.Error(w, r, autherr.New(autherr.KindUnauthenticated, "Authentication required"))
			return
		}

		profile, err := svc.Profile(r.Context(), principal.ExternalID)
		if err != nil {
			respond.Error(w, r, err)
			return
		}

		respond.JSON(w, http.StatusOK, map[string]any{
			"message": "Current user",
			"user":    profile,
		})
	}
}

// HandleAdmin is the admin-only landing endpoint.
func HandleAdmin() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"message": "Admin dashboard"})
	}
}

// HandleSignIn plays the identity authority's client sign-in: it checks
// email and password and returns an assertion token for /login.
func HandleSignIn(authority SignInAuthority) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req signInRequest
		if err := decode(w, r, &req); err != nil {
			respond.Error(w, r, err)
			return
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			respond.Error(w, r, autherr.New(autherr.KindInvalidRequest, "Email and password are required"))
			return
		}

		token, expiresAt, err := authority.SignIn(r.Context(), req.Email, req.Password)
		if err != nil {
			respond.Error(w, r, signInError(err))
			return
		}

		respond.JSON(w, http.StatusOK, signInResponse{
			IDToken:   token,
			ExpiresIn: int64(time.Until(expiresAt).Seconds()),
		})
	}
}

func signInError(err error) error {
	switch {
	case errors.Is(err, identity.ErrIdentityNotFound):
		return autherr.Wrap(autherr.KindNotFound, "No user found with this email address", err)
	case errors.Is(err, identity.ErrInvalidPassword):
		return autherr.Wrap(autherr.KindInvalidCredential, "Incorrect password", err)
	case errors.Is(err, identity.ErrIdentityDisabled):
		return autherr.Wrap(autherr.KindInvalidCredential, "This account has been disabled", err)
	default:
		return autherr.Wrap(autherr.KindInternal, "", err)
	}
}
