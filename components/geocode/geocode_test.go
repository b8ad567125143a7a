package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
)

type handlerResponse struct {
	Data []client.Suggestion `json:"data"`
}

type countingSource struct {
	mu      sync.Mutex
	calls   []string
	results []client.Suggestion
	err     error
}

func (s *countingSource) Suggest(_ context.Context, query string, limit int) ([]client.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, query)
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.results) {
		return s.results[:limit], nil
	}
	return s.results, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func sampleSuggestions() []client.Suggestion {
	return []client.Suggestion{
		{Label: "1 Main St, Springfield, IL", Street: "1 Main St", City: "Springfield", State: "IL", PostalCode: "62701"},
		{Label: "1 Main St, Shelbyville, IL", Street: "1 Main St", City: "Shelbyville", State: "IL", PostalCode: "62565"},
		{Label: "1 Maine Ave, Portland, ME", Street: "1 Maine Ave", City: "Portland", State: "ME", PostalCode: "04101"},
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handlerResponse {
	t.Helper()
	var payload handlerResponse
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return payload
}

func TestHandler_ShortQueryReturnsEmptyDataArray(t *testing.T) {
	source := &countingSource{results: sampleSuggestions()}
	h := Handler(WithSource(source))

	rec := get(t, h, "/api/geocode?q=1+")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected JSON content-type, got %q", ct)
	}
	payload := decode(t, rec)
	if payload.Data == nil || len(payload.Data) != 0 {
		t.Fatalf("expected empty data array, got %#v", payload.Data)
	}
	if source.count() != 0 {
		t.Fatalf("expected no upstream call, got %d", source.count())
	}
}

func TestHandler_CachesNormalizedQueries(t *testing.T) {
	source := &countingSource{results: sampleSuggestions()}
	now := clock.NewManual(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	c := New(WithSource(source), WithClock(now), WithCacheTTL(time.Minute), WithMaxLimit(2))
	h := c.Handler()

	first := decode(t, get(t, h, "/api/geocode?q=1+Main+St&limit=10"))
	second := decode(t, get(t, h, "/api/geocode?q=1%20%20main%20st&limit=2"))

	if diff := cmp.Diff(sampleSuggestions()[:2], first.Data); diff != "" {
		t.Fatalf("suggestions mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(first.Data, second.Data); diff != "" {
		t.Fatalf("cached suggestions mismatch (-want +got):\n%s", diff)
	}
	if source.count() != 1 {
		t.Fatalf("expected one upstream call, got %d", source.count())
	}

	now.Advance(2 * time.Minute)
	get(t, h, "/api/geocode?q=1+main+st&limit=2")
	if source.count() != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", source.count())
	}

	c.Lookup().Invalidate()
	get(t, h, "/api/geocode?q=1+main+st&limit=2")
	if source.count() != 3 {
		t.Fatalf("expected reload after invalidate, got %d calls", source.count())
	}
}

func TestHandler_UpstreamFailureIsBadGateway(t *testing.T) {
	source := &countingSource{err: errors.New("connection refused")}
	h := Handler(WithSource(source))

	rec := get(t, h, "/api/geocode?q=main+street")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("upstream error leaked: %s", rec.Body.String())
	}

	// failures are not cached
	source.mu.Lock()
	source.err = nil
	source.results = sampleSuggestions()
	source.mu.Unlock()
	rec = get(t, h, "/api/geocode?q=main+street")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 after recovery, got %d", rec.Code)
	}
}

func TestHandler_GuardRejects(t *testing.T) {
	h := Handler(
		WithSource(&countingSource{}),
		WithGuard(func(r *http.Request) error {
			return StatusError{Code: http.StatusUnauthorized}
		}),
	)

	rec := get(t, h, "/api/geocode?q=main")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := Handler(WithSource(&countingSource{}))

	req := httptest.NewRequest(http.MethodPost, "/api/geocode?q=main", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rec.Code)
	}
}

func TestLookup_MissingSource(t *testing.T) {
	lookup := NewLookup(NewOptions())
	if _, err := lookup.Suggest(context.Background(), "main street", 3); !errors.Is(err, ErrNoSource) {
		t.Fatalf("expected ErrNoSource, got %v", err)
	}
}

func TestNormalizeQuery(t *testing.T) {
	if got := NormalizeQuery("  1   Main\tST "); got != "1 main st" {
		t.Fatalf("unexpected normalized query %q", got)
	}
}

func TestMountPath_JoinsBasePath(t *testing.T) {
	if got := MountPath("/v1"); got != "/v1/api/geocode" {
		t.Fatalf("unexpected mount path: %q", got)
	}
	if got := MountPath("v1/", WithRoutePath("address")); got != "/v1/address" {
		t.Fatalf("unexpected mount path: %q", got)
	}
}

func TestRegisterRoutes_RegistersHandler(t *testing.T) {
	mux := http.NewServeMux()
	c := New(WithSource(&countingSource{results: sampleSuggestions()}))
	pattern, err := c.RegisterRoutes(mux, "/")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if pattern != "/api/geocode" {
		t.Fatalf("unexpected registered pattern: %q", pattern)
	}

	rec := get(t, mux, pattern+"?q=main&limit=1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if payload := decode(t, rec); len(payload.Data) != 1 {
		t.Fatalf("expected one suggestion, got %#v", payload.Data)
	}

	if _, err := c.RegisterRoutes(nil, "/"); err == nil {
		t.Fatalf("expected error for nil mux")
	}
}
