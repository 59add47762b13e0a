package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var secret = []byte("test-secret")

func wrapped(t *testing.T) (http.Handler, *Role) {
	t.Helper()
	var seen Role
	mw := NewMiddleware(secret, NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil))
	return mw.Wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})), &seen
}

func serve(handler http.Handler, method, path, token string) int {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	return resp.Code
}

func mustToken(t *testing.T, role Role) string {
	t.Helper()
	token, err := IssueJWT(secret, "user-1", role, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func TestAuthMiddleware_NoToken(t *testing.T) {
	handler, _ := wrapped(t)
	if code := serve(handler, http.MethodGet, "/api/v1/vehicles", ""); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestAuthMiddleware_ChallengesMissingOrMalformedBearer(t *testing.T) {
	handler, _ := wrapped(t)
	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "Bearer ", mustToken(t, RoleAdmin)} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/vehicles", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, resp.Code)
		}
		if got := resp.Header().Get("WWW-Authenticate"); got != `Bearer realm="fleet"` {
			t.Fatalf("header %q: unexpected challenge %q", header, got)
		}
	}
}

func TestAuthMiddleware_AcceptsLowercaseScheme(t *testing.T) {
	handler, seen := wrapped(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "bearer "+mustToken(t, RoleOperator))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK || *seen != RoleOperator {
		t.Fatalf("expected operator pass-through, got %d %q", resp.Code, *seen)
	}
}

func TestRoleLadder(t *testing.T) {
	role, ok := NormalizeRole("  Operator ")
	if !ok || role != RoleOperator {
		t.Fatalf("normalize: got %q %v", role, ok)
	}
	if _, err := ParseRole("root"); err == nil {
		t.Fatal("expected unknown role error")
	}
	if !RoleAtLeast(RoleAdmin, RoleOperator) || RoleAtLeast(RoleViewer, RoleOperator) {
		t.Fatal("ladder order wrong")
	}
	if RoleAtLeast(Role("root"), RoleViewer) {
		t.Fatal("unknown role must satisfy nothing")
	}
	if got := Roles(); len(got) != 3 || got[0] != RoleViewer || got[2] != RoleAdmin {
		t.Fatalf("unexpected roles %v", got)
	}
}

func TestAuthMiddleware_ExemptPaths(t *testing.T) {
	handler, _ := wrapped(t)
	if code := serve(handler, http.MethodGet, "/healthz", ""); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestAuthMiddleware_ViewerReadsButCannotSchedule(t *testing.T) {
	handler, seen := wrapped(t)
	token := mustToken(t, RoleViewer)
	if code := serve(handler, http.MethodGet, "/api/v1/rankings", token); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if *seen != RoleViewer {
		t.Fatalf("expected viewer identity in context, got %q", *seen)
	}
	if code := serve(handler, http.MethodPost, "/api/v1/appointments", token); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve(handler, http.MethodPost, "/api/v1/assistant/chat", token); code != http.StatusOK {
		t.Fatalf("viewer should chat, got %d", code)
	}
}

func TestAuthMiddleware_SweepRequiresAdmin(t *testing.T) {
	handler, _ := wrapped(t)
	if code := serve(handler, http.MethodPost, "/api/v1/scheduling/sweep", mustToken(t, RoleOperator)); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
	if code := serve(handler, http.MethodPost, "/api/v1/scheduling/sweep", mustToken(t, RoleAdmin)); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestAuthMiddleware_RejectsExpiredAndForeignTokens(t *testing.T) {
	handler, _ := wrapped(t)
	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if code := serve(handler, http.MethodGet, "/api/v1/vehicles", signed); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for expired token, got %d", code)
	}
	foreign, _ := IssueJWT([]byte("other-secret"), "user-1", RoleAdmin, time.Hour)
	if code := serve(handler, http.MethodGet, "/api/v1/vehicles", foreign); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign token, got %d", code)
	}
}
