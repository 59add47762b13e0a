package auth

import (
	"errors"
	"net/http"
	"strings"
)

var errMissingToken = errors.New("auth: missing bearer token")

// Middleware authenticates bearer tokens and enforces the role policy on API routes.
type Middleware struct {
	Secret []byte
	Policy Policy
}

// NewMiddleware constructs an auth middleware.
func NewMiddleware(secret []byte, policy Policy) *Middleware {
	return &Middleware{Secret: secret, Policy: policy}
}

// Wrap guards next. Routes without a policy rule pass through untouched.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		required, guarded := m.required(r)
		if !guarded {
			next.ServeHTTP(w, r)
			return
		}
		role, subject, err := m.authenticate(r)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="fleet"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if !RoleAtLeast(role, required) {
			http.Error(w, "forbidden: requires "+string(required)+" role", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), role, subject)))
	})
}

func (m *Middleware) required(r *http.Request) (Role, bool) {
	if m.Policy.IsExempt(r) {
		return "", false
	}
	return m.Policy.RequiredRole(r)
}

func (m *Middleware) authenticate(r *http.Request) (Role, string, error) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return "", "", errMissingToken
	}
	claims, err := ParseJWT(token, m.Secret)
	if err != nil {
		return "", "", err
	}
	role, _ := NormalizeRole(claims.Role)
	return role, claims.Subject, nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
