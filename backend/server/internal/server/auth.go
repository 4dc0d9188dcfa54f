package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIdContextKey contextKey = "user_id"

// userClaims accepts tokens that carry the user in either the standard subject claim or a
// user_id claim. The id itself is opaque.
type userClaims struct {
	UserId string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

func getBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func (s *Server) parseUserId(raw string) (string, error) {
	if len(s.jwtSecret) == 0 {
		return "", errors.New("no JWT secret configured")
	}
	claims := &userClaims{}
	_, err := jwt.ParseWithClaims(
		raw,
		claims,
		func(t *jwt.Token) (any, error) { return s.jwtSecret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("jwt.ParseWithClaims: %w", err)
	}
	userId := claims.Subject
	if userId == "" {
		userId = claims.UserId
	}
	if userId == "" {
		return "", errors.New("token has no user id")
	}
	return userId, nil
}

// withUser rejects requests without a valid bearer token and makes the caller's user id
// available through getUserId.
func (s *Server) withUser(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := getBearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		userId, err := s.parseUserId(raw)
		if err != nil {
			s.logger.WithError(err).Debug("rejected bearer token")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userIdContextKey, userId)))
	})
}

func getUserId(r *http.Request) string {
	v, ok := r.Context().Value(userIdContextKey).(string)
	if !ok || v == "" {
		panic("getUserId called on a request that did not go through withUser")
	}
	return v
}

// withCronSecret guards scheduler-only endpoints. They are closed when no secret is
// configured.
func (s *Server) withCronSecret(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := getBearerToken(r)
		if !ok || s.cronSecret == "" || subtle.ConstantTimeCompare([]byte(raw), []byte(s.cronSecret)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		h.ServeHTTP(w, r)
	})
}
