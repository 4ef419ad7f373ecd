package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func validClaims() Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-123",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: "0b6f1f5e-4a4e-4a86-9b55-3c61f2de9a10",
		Roles:    []string{RoleReceptionist},
	}
}

func statusOf(t *testing.T, err error, rec *httptest.ResponseRecorder) int {
	t.Helper()
	if err == nil {
		return rec.Code
	}
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	return he.Code
}

func run(t *testing.T, mw echo.MiddlewareFunc, authHeader string) (echo.Context, int) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	err := mw(func(c echo.Context) error { return c.String(http.StatusOK, "ok") })(c)
	return c, statusOf(t, err, rec)
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"wrong key", "Bearer " + createTestToken(t, validClaims(), []byte("other-key"))},
		{"expired", "Bearer " + createTestToken(t, expired, testSigningKey)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, status := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), tt.header)
			if status != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", status)
			}
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token := createTestToken(t, validClaims(), testSigningKey)
	c, status := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if got := c.Get("jwt_tenant_id"); got != validClaims().TenantID {
		t.Errorf("expected jwt_tenant_id %s, got %v", validClaims().TenantID, got)
	}
	ctx := c.Request().Context()
	if uid := UserIDFromContext(ctx); uid != "user-123" {
		t.Errorf("expected user-123, got %s", uid)
	}
	if roles := RolesFromContext(ctx); len(roles) != 1 || roles[0] != RoleReceptionist {
		t.Errorf("unexpected roles %v", roles)
	}
}

func TestJWTMiddleware_IssuerAudience(t *testing.T) {
	claims := validClaims()
	claims.Issuer = "https://issuer.example"
	claims.Audience = jwt.ClaimStrings{"appointments"}
	token := "Bearer " + createTestToken(t, claims, testSigningKey)

	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "https://issuer.example", Audience: "appointments"}
	if _, status := run(t, JWTMiddleware(cfg), token); status != http.StatusOK {
		t.Errorf("expected 200, got %d", status)
	}
	cfg.Audience = "billing"
	if _, status := run(t, JWTMiddleware(cfg), token); status != http.StatusUnauthorized {
		t.Errorf("expected 401 for wrong audience, got %d", status)
	}
}

func TestJWTMiddleware_JWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": "k1",
				"n":   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
			}},
		})
	}))
	defer srv.Close()

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims())
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	mw := JWTMiddleware(JWTConfig{JWKSURL: srv.URL})
	if _, status := run(t, mw, "Bearer "+signed); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}

	tok.Header["kid"] = "unknown"
	unknown, _ := tok.SignedString(key)
	if _, status := run(t, mw, "Bearer "+unknown); status != http.StatusUnauthorized {
		t.Errorf("expected 401 for unknown kid, got %d", status)
	}

	// An HS256 token must not be accepted by an RS256 verifier.
	if _, status := run(t, mw, "Bearer "+createTestToken(t, validClaims(), testSigningKey)); status != http.StatusUnauthorized {
		t.Errorf("expected 401 for HS256 token, got %d", status)
	}
}

func TestJWTMiddleware_RequiresTenantClaim(t *testing.T) {
	claims := validClaims()
	claims.TenantID = ""
	token := createTestToken(t, claims, testSigningKey)

	c, status := run(t, JWTMiddleware(JWTConfig{SigningKey: testSigningKey}), "Bearer "+token)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for token without tenant, got %d", status)
	}
	if allowed, _ := c.Get("tenant_header_allowed").(bool); allowed {
		t.Error("JWT requests must not allow the tenant header")
	}
}

func TestDevAuthMiddleware(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey}

	c, status := run(t, DevAuthMiddleware(cfg), "")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if roles := RolesFromContext(c.Request().Context()); len(roles) != 1 || roles[0] != RoleAdmin {
		t.Errorf("expected admin dev role, got %v", roles)
	}
	if allowed, _ := c.Get("tenant_header_allowed").(bool); !allowed {
		t.Error("expected dev user to take the tenant from the header")
	}

	if _, status := run(t, DevAuthMiddleware(cfg), "Bearer bad"); status != http.StatusUnauthorized {
		t.Errorf("expected presented token to be validated, got %d", status)
	}

	token := createTestToken(t, validClaims(), testSigningKey)
	c, status = run(t, DevAuthMiddleware(cfg), "Bearer "+token)
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if uid := UserIDFromContext(c.Request().Context()); uid != "user-123" {
		t.Errorf("expected token subject, got %s", uid)
	}
	if allowed, _ := c.Get("tenant_header_allowed").(bool); allowed {
		t.Error("token-authenticated dev request must not allow the tenant header")
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		want  int
	}{
		{"matching role", []string{RolePhysician}, http.StatusOK},
		{"admin bypass", []string{RoleAdmin}, http.StatusOK},
		{"wrong role", []string{RolePatient}, http.StatusForbidden},
		{"no roles", nil, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req = req.WithContext(context.WithValue(req.Context(), UserRolesKey, tt.roles))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := RequireRole(RolePhysician, RoleReceptionist)(func(c echo.Context) error {
				return c.String(http.StatusOK, "ok")
			})(c)
			if got := statusOf(t, err, rec); got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, got)
			}
		})
	}
}
