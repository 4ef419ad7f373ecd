package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/labstack/echo/v4"
)

func writeMigrations(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	return dir
}

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"010_later.sql":      "SELECT 10;",
		"001_scheduling.sql": "SELECT 1;",
		"002_indexes.sql":    "SELECT 2;",
		"readme.sql":         "-- no prefix",
		"abc_invalid.sql":    "-- non-numeric",
		"notes.txt":          "ignored",
	})

	migrations, err := NewMigrator(nil, dir).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	want := []int{1, 2, 10}
	for i, v := range want {
		if migrations[i].Version != v {
			t.Errorf("migration[%d]: expected version %d, got %d", i, v, migrations[i].Version)
		}
	}
	if migrations[0].SQL != "SELECT 1;" {
		t.Errorf("unexpected SQL content: %s", migrations[0].SQL)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	dir := writeMigrations(t, map[string]string{
		"001_a.sql": "SELECT 1;",
		"01_b.sql":  "SELECT 1;",
	})
	if _, err := NewMigrator(nil, dir).LoadMigrations(); err == nil {
		t.Fatal("expected error for duplicate version")
	}
}

func TestLoadMigrations_NonExistentDir(t *testing.T) {
	if _, err := NewMigrator(nil, "/nonexistent/migrations").LoadMigrations(); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestStatuses(t *testing.T) {
	migrations := []Migration{{Version: 1, Name: "001_a.sql"}, {Version: 2, Name: "002_b.sql"}}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	done := map[int]time.Time{1: at}

	s := statuses(migrations, done)
	if len(s) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(s))
	}
	if !s[0].Applied || s[0].AppliedAt == nil || !s[0].AppliedAt.Equal(at) {
		t.Errorf("expected migration 1 applied at %v, got %+v", at, s[0])
	}
	if s[1].Applied || s[1].AppliedAt != nil {
		t.Errorf("expected migration 2 pending, got %+v", s[1])
	}

	p := pending(migrations, done)
	if len(p) != 1 || p[0].Version != 2 {
		t.Errorf("expected only version 2 pending, got %+v", p)
	}
}

func TestTenantMiddleware(t *testing.T) {
	tenant := uuid.New()
	tests := []struct {
		name       string
		header     string
		allowed    bool
		jwtTenant  string
		wantStatus int
		want       uuid.UUID
	}{
		{name: "header in dev mode", header: tenant.String(), allowed: true, wantStatus: http.StatusOK, want: tenant},
		{name: "header ignored without dev flag", header: tenant.String(), wantStatus: http.StatusBadRequest},
		{name: "jwt wins over header", header: uuid.NewString(), allowed: true, jwtTenant: tenant.String(), wantStatus: http.StatusOK, want: tenant},
		{name: "jwt only", jwtTenant: tenant.String(), wantStatus: http.StatusOK, want: tenant},
		{name: "empty claim does not fall back", header: uuid.NewString(), jwtTenant: "", wantStatus: http.StatusBadRequest},
		{name: "missing", allowed: true, wantStatus: http.StatusBadRequest},
		{name: "malformed", header: "hospital_abc", allowed: true, wantStatus: http.StatusBadRequest},
		{name: "nil uuid", header: uuid.Nil.String(), allowed: true, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(TenantHeader, tt.header)
			}
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)
			if tt.jwtTenant != "" {
				c.Set("jwt_tenant_id", tt.jwtTenant)
			}
			if tt.allowed {
				c.Set("tenant_header_allowed", true)
			}

			var got uuid.UUID
			h := TenantMiddleware()(func(c echo.Context) error {
				got = TenantFromContext(c)
				return c.NoContent(http.StatusOK)
			})
			err := h(c)

			status := rec.Code
			var he *echo.HTTPError
			if errors.As(err, &he) {
				status = he.Code
			}
			if status != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, status)
			}
			if got != tt.want {
				t.Errorf("expected tenant %s, got %s", tt.want, got)
			}
		})
	}
}

func TestTenantFromContext_Unset(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	if id := TenantFromContext(c); id != uuid.Nil {
		t.Errorf("expected nil tenant, got %s", id)
	}
}

func TestSQLState(t *testing.T) {
	excl := fmt.Errorf("insert: %w", &pgconn.PgError{Code: SQLStateExclusionViolation})
	if !IsExclusionViolation(excl) {
		t.Error("expected wrapped 23P01 to be an exclusion violation")
	}
	if IsUniqueViolation(excl) {
		t.Error("23P01 is not a unique violation")
	}
	if !IsUniqueViolation(&pgconn.PgError{Code: SQLStateUniqueViolation}) {
		t.Error("expected unique violation")
	}
	if !IsCheckViolation(&pgconn.PgError{Code: SQLStateCheckViolation}) {
		t.Error("expected check violation")
	}
	if SQLState(errors.New("plain")) != "" {
		t.Error("expected empty SQLSTATE for non-pg error")
	}
	if !IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)) {
		t.Error("expected wrapped ErrNoRows to match")
	}
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

func TestHealthHandler(t *testing.T) {
	for _, tt := range []struct {
		name       string
		err        error
		wantStatus int
		wantState  string
	}{
		{name: "healthy", wantStatus: http.StatusOK, wantState: "healthy"},
		{name: "unhealthy", err: errors.New("connection refused"), wantStatus: http.StatusServiceUnavailable, wantState: "unhealthy"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health/db", nil), rec)

			h := healthHandler(fakePinger{err: tt.err}, func() *PoolStats { return &PoolStats{MaxConns: 20} })
			if err := h(c); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rec.Code)
			}
			var body struct {
				Status string    `json:"status"`
				Pool   PoolStats `json:"pool"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tt.wantState {
				t.Errorf("expected status %q, got %q", tt.wantState, body.Status)
			}
			if body.Pool.Healthy != (tt.err == nil) {
				t.Errorf("unexpected healthy flag %v", body.Pool.Healthy)
			}
		})
	}
}
