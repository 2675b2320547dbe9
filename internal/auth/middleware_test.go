package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return s
}

func serve(a *Authenticator, req *http.Request) (*httptest.ResponseRecorder, *Claims) {
	var got *Claims
	h := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetUserFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, got
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	a := New(Options{}, zerolog.Nop())
	rec, _ := serve(a, httptest.NewRequest("GET", "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestMiddlewareHealthBypass(t *testing.T) {
	a := New(Options{}, zerolog.Nop())
	rec, _ := serve(a, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestMiddlewareSkipAuth(t *testing.T) {
	a := New(Options{SkipAuth: true}, zerolog.Nop())
	_, claims := serve(a, httptest.NewRequest("GET", "/ws", nil))
	if claims == nil || claims.Role != RoleAdmin {
		t.Fatalf("expected admin dev claims, got %+v", claims)
	}
}

func TestMiddlewareParsesUnverifiedToken(t *testing.T) {
	a := New(Options{}, zerolog.Nop())
	token := signedToken(t, jwt.MapClaims{
		"email":              "sup@acme.test",
		"preferred_username": "sup",
		"groups":             []interface{}{"/companies/acme"},
		"realm_access":       map[string]interface{}{"roles": []interface{}{"viewer", "supervisor"}},
		"exp":                float64(time.Now().Add(time.Hour).Unix()),
	})

	req := httptest.NewRequest("GET", "/ws?token="+token, nil)
	rec, claims := serve(a, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if claims.Name != "sup" || claims.Role != "supervisor" {
		t.Errorf("unexpected claims %+v", claims)
	}
	if !claims.CanViewCompany("acme") || claims.CanViewCompany("globex") {
		t.Errorf("unexpected company visibility for groups %v", claims.Groups)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	a := New(Options{}, zerolog.Nop())
	token := signedToken(t, jwt.MapClaims{"exp": float64(time.Now().Add(-time.Hour).Unix())})

	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if rec, _ := serve(a, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestVerifyWithoutIssuerFails(t *testing.T) {
	a := New(Options{VerifySignature: true}, zerolog.Nop())
	req := httptest.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{}))
	if rec, _ := serve(a, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestCanViewCompany(t *testing.T) {
	tests := []struct {
		name   string
		claims Claims
		filter string
		want   bool
	}{
		{"admin sees all", Claims{Role: RoleAdmin}, "acme", true},
		{"admin sees unfiltered", Claims{Role: RoleAdmin}, "", true},
		{"exact group", Claims{Groups: []string{"acme"}}, "acme", true},
		{"path group", Claims{Groups: []string{"/companies/acme"}}, "acme", true},
		{"partial name", Claims{Groups: []string{"/companies/acme-east"}}, "acme", false},
		{"empty filter", Claims{Groups: []string{""}}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.claims.CanViewCompany(tt.filter); got != tt.want {
				t.Errorf("CanViewCompany(%q) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}
