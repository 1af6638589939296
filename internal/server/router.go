package server

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/medreach/identitybridge/internal/auth"
	bridgemiddleware "github.com/medreach/identitybridge/internal/middleware"
)

// RouterOptions controls the construction of the HTTP router.
type RouterOptions struct {
	Identity      identityService
	Authenticator bridgemiddleware.Authenticator
	// SignIn mounts /api/auth/identity/signin when set (local identity mode).
	SignIn        SignInAuthority
	CORSOptions   *cors.Options
	Middleware    []func(http.Handler) http.Handler
	HealthHandler http.HandlerFunc
}

// DefaultCORSOptions returns the development CORS policy for the browser client.
func DefaultCORSOptions() cors.Options {
	return cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

func defaultHealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// NewRouter assembles the chi router with shared middleware and the
// /api/auth routes.
func NewRouter(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	corsCfg := DefaultCORSOptions()
	if opts.CORSOptions != nil {
		corsCfg = *opts.CORSOptions
	}
	r.Use(cors.Handler(corsCfg))

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	healthHandler := opts.HealthHandler
	if healthHandler == nil {
		healthHandler = defaultHealthHandler
	}
	r.Get("/health", healthHandler)

	if opts.Identity == nil {
		log.Println("WARNING: identity service not configured, /api/auth not mounted")
		return r
	}

	r.Route("/api/auth", func(r chi.Router) {
		if opts.Identity.CanRegister() {
			r.Post("/register", HandleRegister(opts.Identity))
		} else {
			log.Println("Identity authority is not administrable, /api/auth/register not mounted")
		}
		r.Post("/login", HandleLogin(opts.Identity))
		r.Post("/google", HandleFederatedLogin(opts.Identity))

		if opts.SignIn != nil {
			r.Post("/identity/signin", HandleSignIn(opts.SignIn))
		}

		if opts.Authenticator == nil {
			log.Println("WARNING: no authenticator configured, /api/auth/me and /api/auth/admin not mounted")
			return
		}
		r.Group(func(r chi.Router) {
			r.Use(bridgemiddleware.Authenticate(opts.Authenticator))
			r.Get("/me", HandleMe(opts.Identity))
			r.With(bridgemiddleware.RequireRoles(auth.RoleAdmin)).Get("/admin", HandleAdmin())
		})
	})

	return r
}

// NewH2CHandler wraps the router to serve HTTP/2 over cleartext as well as HTTP/1.1.
func NewH2CHandler(opts RouterOptions) http.Handler {
	return h2c.NewHandler(NewRouter(opts), &http2.Server{})
}
