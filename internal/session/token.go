package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew treats tokens that expire within this window as already expired.
const expirySkew = 30 * time.Second

// BearerToken returns the auth token to attach to API calls.
//
// The token is issued and verified by the server; the client only reads its
// exp claim. An expired token is dropped and a Logout is dispatched so the UI
// can send the user back through login. Tokens that are not JWTs are passed
// through unchanged.
func (s *Store) BearerToken() string {
	token := s.State().AuthToken
	if token == "" {
		return ""
	}

	if tokenExpired(token, time.Now()) {
		s.logger.Info().Msg("session token expired, logging out")
		s.Dispatch(Logout{})
		return ""
	}
	return token
}

func tokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Add(expirySkew).Before(claims.ExpiresAt.Time)
}
