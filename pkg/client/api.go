package client

import (
	"context"
	"net/http"
	"net/url"
)

// RentReport is a stored rent payment report.
type RentReport struct {
	ID                 string  `json:"id"`
	ConfirmationNumber string  `json:"confirmationNumber,omitempty"`
	PaymentDate        string  `json:"paymentDate"`
	MonthlyRent        float64 `json:"monthlyRent"`
	Status             string  `json:"status"`
	CreatedAt          string  `json:"createdAt,omitempty"`
}

// BackRentReport is a stored back rent report.
type BackRentReport struct {
	ID          string `json:"id"`
	Months      int    `json:"months,omitempty"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// VerificationCode is the state of a public purchase code.
type VerificationCode struct {
	Code     string `json:"code"`
	Consumed bool   `json:"consumed"`
	ReportID string `json:"reportId,omitempty"`
}

// Document is a stored member document.
type Document struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"createdAt,omitempty"`
}

// CreditScore is the latest score of a member.
type CreditScore struct {
	Score     int    `json:"score"`
	Bureau    string `json:"bureau,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// MemberSummary is an admin dashboard row.
type MemberSummary struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Plan     string `json:"plan,omitempty"`
	Status   string `json:"status,omitempty"`
	JoinedAt string `json:"joinedAt,omitempty"`
}

// API is the rent reporting API.
type API struct {
	*Client
}

// NewAPI wraps c as the rent reporting API client.
func NewAPI(c *Client) *API { return &API{Client: c} }

// ListRentReports returns the reports of the member owning token.
func (a *API) ListRentReports(ctx context.Context, token string) ([]RentReport, error) {
	var out []RentReport
	err := a.Do(ctx, Request{Method: http.MethodGet, Path: "/rent-reports", Token: token}, &out)
	return out, err
}

// VerificationCode looks up a public purchase code.
func (a *API) VerificationCode(ctx context.Context, code string) (VerificationCode, error) {
	var out VerificationCode
	err := a.Do(ctx, Request{Method: http.MethodGet, Path: "/public/verification-codes/" + url.PathEscape(code)}, &out)
	return out, err
}

// ListDocuments returns the documents of the member owning token.
func (a *API) ListDocuments(ctx context.Context, token string) ([]Document, error) {
	var out []Document
	err := a.Do(ctx, Request{Method: http.MethodGet, Path: "/documents", Token: token}, &out)
	return out, err
}

// CreditScore returns the latest credit score of the member owning token.
func (a *API) CreditScore(ctx context.Context, token string) (CreditScore, error) {
	var out CreditScore
	err := a.Do(ctx, Request{Method: http.MethodGet, Path: "/credit-score", Token: token}, &out)
	return out, err
}

// ListMembers returns the admin dashboard rows.
func (a *API) ListMembers(ctx context.Context, adminToken string) ([]MemberSummary, error) {
	var out []MemberSummary
	err := a.Do(ctx, Request{Method: http.MethodGet, Path: "/admin/members", Token: adminToken}, &out)
	return out, err
}
