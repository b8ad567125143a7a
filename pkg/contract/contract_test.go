package contract_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-rentreport/pkg/contract"
)

func loadContract(t *testing.T) *contract.Contract {
	t.Helper()
	c, err := contract.Default(context.Background())
	if err != nil {
		t.Fatalf("load contract: %v", err)
	}
	return c
}

func TestCheck_AcceptsConformingPayload(t *testing.T) {
	payload := map[string]any{
		"nationalId":         "123456789",
		"confirmationNumber": "CONF-1234",
		"monthlyRent":        1500.0,
		"paymentDate":        "2026-10-03",
		"addressUnchanged":   false,
		"status":             "Reported",
	}
	if err := loadContract(t).Check(context.Background(), "post", "/rent-reports", payload); err != nil {
		t.Fatalf("expected conforming payload, got %v", err)
	}
}

func TestCheck_ReportsFieldIssues(t *testing.T) {
	payload := map[string]any{
		"nationalId":         "12345",
		"confirmationNumber": "CONF-1234",
		"monthlyRent":        0.0,
		"paymentDate":        "2026-10-03",
		"addressUnchanged":   true,
		"status":             "Reported",
	}
	err := loadContract(t).Check(context.Background(), "POST", "/rent-reports", payload)

	var contractErr *contract.Error
	if !errors.As(err, &contractErr) {
		t.Fatalf("expected *contract.Error, got %v", err)
	}
	fields := contractErr.Fields()
	if _, ok := fields["nationalId"]; !ok {
		t.Fatalf("expected nationalId issue, got %#v", fields)
	}
	if _, ok := fields["monthlyRent"]; !ok {
		t.Fatalf("expected monthlyRent issue, got %#v", fields)
	}
}

func TestCheck_UnknownOperation(t *testing.T) {
	c := loadContract(t)
	if err := c.Check(context.Background(), "POST", "/nope", map[string]any{}); !errors.Is(err, contract.ErrNoOperation) {
		t.Fatalf("expected ErrNoOperation, got %v", err)
	}
	if err := c.Check(context.Background(), "DELETE", "/rent-reports", nil); !errors.Is(err, contract.ErrNoOperation) {
		t.Fatalf("expected ErrNoOperation for method, got %v", err)
	}
	if err := c.Check(context.Background(), "GET", "/rent-reports", nil); err != nil {
		t.Fatalf("operations without a body accept anything, got %v", err)
	}
}

func TestLoad_RejectsEmptyDocuments(t *testing.T) {
	if _, err := contract.Load(context.Background(), nil); err == nil {
		t.Fatalf("expected empty document error")
	}
	if _, err := contract.Load(context.Background(), []byte("openapi: 3.0.3\ninfo: {title: x, version: '1'}\npaths: {}\n")); err == nil {
		t.Fatalf("expected no paths error")
	}
}

func TestOperations(t *testing.T) {
	ops := loadContract(t).Operations()
	found := false
	for _, op := range ops {
		if op == "POST /public/back-rent-reports" {
			found = true
		}
	}
	if !found {
		t.Fatalf("public back rent operation missing from %v", ops)
	}
}
