package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goliatone/go-rentreport/internal/config"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestFormsCommand(t *testing.T) {
	out, err := run(t, "", "forms")
	if err != nil {
		t.Fatalf("forms: %v", err)
	}
	for _, want := range []string{"rent-report", "back-rent-public", "POST /rent-reports"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	valid := filepath.Join(dir, "valid.json")
	if err := os.WriteFile(valid, []byte(`{"email":"ada@example.com","password":"Secret#123"}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := run(t, "", "validate", "--form", "sign-in", "--values", valid)
	if err != nil {
		t.Fatalf("validate: %v\n%s", err, out)
	}
	if !strings.Contains(out, `"valid": true`) {
		t.Fatalf("expected a valid result:\n%s", out)
	}

	out, err = run(t, `{"email":"nope"}`, "validate", "--form", "sign-in")
	if !errors.Is(err, errInvalidValues) {
		t.Fatalf("expected errInvalidValues, got %v", err)
	}
	if !strings.Contains(out, `"email"`) || !strings.Contains(out, `"password"`) {
		t.Fatalf("expected field errors in output:\n%s", out)
	}

	if _, err := run(t, "{}", "validate", "--form", "unknown"); err == nil {
		t.Fatalf("expected an error for an unknown form")
	}
}

func TestBuildApp_ServesHealthz(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	defer upstream.Close()

	cfg := config.Default()
	cfg.Endpoints.Identity = upstream.URL
	cfg.Endpoints.API = upstream.URL
	cfg.Endpoints.Tracking = upstream.URL
	cfg.Endpoints.Geocode = upstream.URL
	cfg.Endpoints.Billing = upstream.URL

	a, err := buildApp(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	defer a.close()

	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/geocode?q=ma", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected geocode route to be mounted, got %d", rec.Code)
	}
}
