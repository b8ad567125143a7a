package client

import (
	"context"
	"net/http"
)

// CheckoutRequest starts a subscription checkout.
type CheckoutRequest struct {
	Plan       string `json:"plan"`
	Email      string `json:"email"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

// BillingSession is a hosted checkout or customer portal session.
type BillingSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Billing is the payment processor session service.
type Billing struct {
	*Client
}

// NewBilling wraps c as the billing client.
func NewBilling(c *Client) *Billing { return &Billing{Client: c} }

// CreateCheckoutSession starts a checkout for the member owning token.
func (b *Billing) CreateCheckoutSession(ctx context.Context, token string, req CheckoutRequest) (BillingSession, error) {
	var out BillingSession
	err := b.Do(ctx, Request{Method: http.MethodPost, Path: "/checkout-sessions", Token: token, Body: req}, &out)
	return out, err
}

// CreatePortalSession opens the customer portal for the member owning token.
func (b *Billing) CreatePortalSession(ctx context.Context, token, returnURL string) (BillingSession, error) {
	var out BillingSession
	err := b.Do(ctx, Request{
		Method: http.MethodPost,
		Path:   "/portal-sessions",
		Token:  token,
		Body:   map[string]string{"returnUrl": returnURL},
	}, &out)
	return out, err
}
