// Package respond writes JSON responses for the HTTP surface.
package respond

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/medreach/identitybridge/internal/autherr"
)

// ErrorBody is the shape of every failure response.
type ErrorBody struct {
	Error string       `json:"error"`
	Code  autherr.Code `json:"code"`
}

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

// Error classifies err and writes its client-safe message and code. The
// underlying cause is logged, never written.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	classified := autherr.From(err)
	log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	JSON(w, classified.HTTPStatus(), ErrorBody{
		Error: classified.Message,
		Code:  classified.Code(),
	})
}
