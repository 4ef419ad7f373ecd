package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medappt/medappt/internal/config"
	"github.com/medappt/medappt/internal/platform/auth"
	"github.com/medappt/medappt/internal/platform/db"
	"github.com/medappt/medappt/internal/platform/lock"
)

const testTenant = "0b6f1f5e-4a4e-4a86-9b55-3c61f2de9a10"

var testKey = []byte("test-signing-key")

func testConfig(mode string) *config.Config {
	return &config.Config{
		Env:            "test",
		AuthMode:       mode,
		JWTSigningKey:  string(testKey),
		CORSOrigins:    []string{"http://localhost:3000"},
		BodyLimit:      "1M",
		RequestTimeout: 5 * time.Second,
		BookingLockTTL: time.Second,
	}
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	return tokenFor(t, testTenant, roles...)
}

func tokenFor(t *testing.T, tenant string, roles ...string) string {
	t.Helper()
	claims := auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		TenantID: tenant,
		Roles:    roles,
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func serve(t *testing.T, cfg *config.Config, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	e := newServer(cfg, zerolog.Nop(), nil, lock.NewKeyedMutex())
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, testConfig(config.AuthModeJWT), httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected request id header")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestAPI_RequiresToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := serve(t, testConfig(config.AuthModeJWT), req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
}

func TestAPI_RequiresTenant(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := serve(t, testConfig(config.AuthModeDevelopment), req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without tenant, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set(db.TenantHeader, "not-a-uuid")
	rec = serve(t, testConfig(config.AuthModeDevelopment), req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed tenant, got %d", rec.Code)
	}
}

func TestAPI_TenantHeaderIgnoredWithJWT(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, "", auth.RoleAdmin))
	req.Header.Set(db.TenantHeader, "22222222-2222-2222-2222-222222222222")
	rec := serve(t, testConfig(config.AuthModeJWT), req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for token without tenant, got %d", rec.Code)
	}
}

func TestAPI_RoleEnforced(t *testing.T) {
	tests := []struct {
		method, path string
	}{
		{http.MethodDelete, "/api/v1/appointments/7d9f2d3e-0c55-4c3b-9b0e-2f4f3c1a9e11"},
		{http.MethodPatch, "/api/v1/appointments/7d9f2d3e-0c55-4c3b-9b0e-2f4f3c1a9e11"},
		{http.MethodPost, "/api/v1/doctor-availability/availability"},
		{http.MethodDelete, "/api/v1/doctor-availability/blocked-time/7d9f2d3e-0c55-4c3b-9b0e-2f4f3c1a9e11"},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token(t, auth.RolePatient))
		rec := serve(t, testConfig(config.AuthModeJWT), req)
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: expected 403 for patient, got %d", tt.method, tt.path, rec.Code)
		}
	}
}

func TestAPI_ValidationBeforeStorage(t *testing.T) {
	// Rejected in the handler, so no database is needed.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/doctor-availability/time-slots/1/D-100?date=bad", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, auth.RoleReceptionist))
	rec := serve(t, testConfig(config.AuthModeJWT), req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestNewLocker(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(config.AuthModeJWT)

	l, closeFn, err := newLocker(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	closeFn()
	if _, ok := l.(*lock.KeyedMutex); !ok {
		t.Errorf("expected KeyedMutex without REDIS_URL, got %T", l)
	}

	mr := miniredis.RunT(t)
	cfg.RedisURL = "redis://" + mr.Addr()
	l, closeFn, err = newLocker(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := l.(*lock.RedisLocker); !ok {
		t.Errorf("expected RedisLocker, got %T", l)
	}

	cfg.RedisURL = "://nope"
	if _, _, err := newLocker(ctx, cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for malformed redis url")
	}
}

func TestNewLogger(t *testing.T) {
	cfg := &config.Config{Env: "production", LogLevel: "warn"}
	if got := newLogger(cfg).GetLevel(); got != zerolog.WarnLevel {
		t.Errorf("expected warn level, got %v", got)
	}
	cfg.LogLevel = "loud"
	if got := newLogger(cfg).GetLevel(); got != zerolog.InfoLevel {
		t.Errorf("expected info fallback, got %v", got)
	}
}

func TestPrintStatus(t *testing.T) {
	applied := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	printStatus(cmd, []db.MigrationStatus{
		{Version: 1, Name: "scheduling", Applied: true, AppliedAt: &applied},
		{Version: 2, Name: "next"},
	})
	out := buf.String()
	if !strings.Contains(out, "applied") || !strings.Contains(out, "2024-01-15 09:00:00") || !strings.Contains(out, "pending") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestMigrateCmd_Subcommands(t *testing.T) {
	cmd := migrateCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	if !names["up"] || !names["status"] {
		t.Errorf("expected up and status subcommands, got %v", names)
	}
}
