package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/orionwholesale/storefront/internal/api/models"
)

const bearerPrefix = "bearer "

// RequireAdminToken guards operator endpoints with a static bearer token.
// An empty token locks the endpoints entirely.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				writeUnauthorized(w, r, "admin endpoints are disabled")
				return
			}

			header := r.Header.Get("Authorization")
			if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
				writeUnauthorized(w, r, "missing bearer token")
				return
			}

			presented := strings.TrimSpace(header[len(bearerPrefix):])
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				writeUnauthorized(w, r, "invalid admin token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	models.NewUnauthorized(GetRequestID(r.Context()), detail).
		WithInstance(r.URL.Path).
		Write(w)
}
