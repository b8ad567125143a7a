package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Suggestion is an address autocomplete candidate.
type Suggestion struct {
	Label      string `json:"label"`
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
}

// Geocoder is the address autocomplete service.
type Geocoder struct {
	*Client
}

// NewGeocoder wraps c as the geocoding client.
func NewGeocoder(c *Client) *Geocoder { return &Geocoder{Client: c} }

// Suggest returns up to limit candidates for query.
func (g *Geocoder) Suggest(ctx context.Context, query string, limit int) ([]Suggestion, error) {
	q := url.Values{"q": []string{query}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Results []Suggestion `json:"results"`
	}
	if err := g.Do(ctx, Request{Method: http.MethodGet, Path: "/autocomplete", Query: q}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
