package client

import (
	"context"
	"net/http"
	"net/url"
)

// TrackingSnapshot is the partial registration progress sent for funnel
// tracking.
type TrackingSnapshot struct {
	ID         string `json:"id"`
	Step       string `json:"step,omitempty"`
	FirstName  string `json:"firstName,omitempty"`
	LastName   string `json:"lastName,omitempty"`
	Email      string `json:"email,omitempty"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Tracking is the funnel tracking endpoint.
type Tracking struct {
	*Client
}

// NewTracking wraps c as the tracking client.
func NewTracking(c *Client) *Tracking { return &Tracking{Client: c} }

// Put creates or replaces the snapshot stored under its ID.
func (t *Tracking) Put(ctx context.Context, snapshot TrackingSnapshot) error {
	return t.Do(ctx, Request{Method: http.MethodPut, Path: "/sessions/" + url.PathEscape(snapshot.ID), Body: snapshot}, nil)
}

// Delete removes a snapshot.
func (t *Tracking) Delete(ctx context.Context, id string) error {
	return t.Do(ctx, Request{Method: http.MethodDelete, Path: "/sessions/" + url.PathEscape(id)}, nil)
}
