package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// memberIDKey is the context key for the authenticated member's ID.
type memberIDKey struct{}

// MemberIDFromContext extracts the authenticated member ID from the context.
// Business logic never reads it implicitly; handlers pull it out here and
// pass it on as an explicit parameter.
func MemberIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(memberIDKey{}).(string)
	return id, ok && id != ""
}

// Authenticator validates bearer tokens and resolves the member identity.
type Authenticator struct {
	secret []byte
}

// NewAuthenticator creates an Authenticator with the given HMAC signing
// secret.
func NewAuthenticator(secret []byte) *Authenticator {
	return &Authenticator{secret: secret}
}

// RequireMember rejects requests without a valid bearer token and stores the
// token subject (the member ID) in the request context.
func (a *Authenticator) RequireMember(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Code:    http.StatusUnauthorized,
				Message: "missing bearer token",
			})
			return
		}

		memberID, err := a.verify(token)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorBody{
				Code:    http.StatusUnauthorized,
				Message: "invalid or expired token",
			})
			return
		}

		ctx := context.WithValue(r.Context(), memberIDKey{}, memberID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify parses the token, enforcing HMAC signing, and returns its subject.
func (a *Authenticator) verify(token string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return "", err
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}
	return sub, nil
}
