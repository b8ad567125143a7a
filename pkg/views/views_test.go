package views

import (
	"bytes"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/model"
	"github.com/goliatone/go-rentreport/pkg/submit"
)

func mustRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := New()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	return r
}

func TestRenderRentReportSuccess(t *testing.T) {
	r := mustRenderer(t)
	result := submit.Result{
		Outcome: submit.OutcomeSuccess,
		View:    "rent-report-success",
		Data: &client.RentReport{
			ID:          "rr-1",
			PaymentDate: "2026-10-03",
			MonthlyRent: 1500,
			Status:      "Reported",
		},
		Toast: &submit.Toast{Message: "Saved", Kind: "success", DismissAfter: submit.DefaultDismissAfter},
	}

	var buf bytes.Buffer
	out, err := r.Render(result, &buf)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for _, want := range []string{"$1,500.00", "2026-10-03", "status-reported", `data-dismiss-after="5000"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
	if buf.String() != out {
		t.Fatalf("writer received different output")
	}
}

func TestRenderFallsBackToStatus(t *testing.T) {
	r := mustRenderer(t)

	cases := []struct {
		name   string
		result submit.Result
		want   string
	}{
		{
			name:   "unknown view",
			result: submit.Result{Outcome: submit.OutcomeSuccess, View: "no-such-view"},
			want:   "All set",
		},
		{
			name:   "failure ignores view",
			result: submit.Result{Outcome: submit.OutcomeServerError, View: "rent-report-success", Form: []string{"Payment date is closed"}},
			want:   "Payment date is closed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.View(tc.result); got != StatusView {
				t.Fatalf("expected status view, got %q", got)
			}
			out, err := r.Render(tc.result)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if !strings.Contains(out, tc.want) {
				t.Fatalf("expected %q in output:\n%s", tc.want, out)
			}
		})
	}
}

func TestRenderEscapesFieldErrors(t *testing.T) {
	r := mustRenderer(t)
	result := submit.Validation(model.Errors{
		"monthlyRent": "<b>Required</b>",
		"email":       "Invalid email",
	})

	out, err := r.Render(result)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "<b>Required</b>") {
		t.Fatalf("expected message to be escaped:\n%s", out)
	}
	if strings.Index(out, `data-field="email"`) > strings.Index(out, `data-field="monthlyRent"`) {
		t.Fatalf("expected field errors in sorted order:\n%s", out)
	}
}

func TestRenderAlreadyReported(t *testing.T) {
	r := mustRenderer(t)
	result := submit.Result{
		Outcome: submit.OutcomeSuccess,
		View:    "back-rent-already-reported",
		Data:    map[string]string{"code": "ABC123", "reportId": "br-9"},
	}
	out, err := r.Render(result)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(out, "ABC123") || !strings.Contains(out, "br-9") {
		t.Fatalf("expected code and report id:\n%s", out)
	}
}

func TestEngineCustomFS(t *testing.T) {
	files := fstest.MapFS{
		"greeting.html": {Data: []byte(`Hello {{ name|lower }} {{ site }}`)},
	}
	engine, err := NewEngine(files, "html")
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := engine.GlobalContext(map[string]any{"site": "rentreport"}); err != nil {
		t.Fatalf("globals: %v", err)
	}
	out, err := engine.RenderTemplate("greeting", map[string]string{"name": "ADA"})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if out != "Hello ada rentreport" {
		t.Fatalf("unexpected output %q", out)
	}
	if engine.Has("missing") {
		t.Fatalf("expected missing template to be reported")
	}
}

func TestFormatMoney(t *testing.T) {
	cases := map[float64]string{
		0:          "$0.00",
		12.5:       "$12.50",
		1500:       "$1,500.00",
		1234567.89: "$1,234,567.89",
		-42:        "-$42.00",
	}
	for in, want := range cases {
		if got := formatMoney(in); got != want {
			t.Fatalf("formatMoney(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestNewEngineRequiresFS(t *testing.T) {
	if _, err := NewEngine(nil, ".html"); err == nil {
		t.Fatalf("expected error for nil filesystem")
	}
}
