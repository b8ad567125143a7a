package client

import (
	"context"
	"net/http"
)

// DeliveryRequest asks for a report PDF to be generated and sent.
type DeliveryRequest struct {
	ReportID string `json:"reportId"`
	Email    string `json:"email,omitempty"`
	Method   string `json:"method"`
}

// Delivery is the accepted delivery.
type Delivery struct {
	ID          string `json:"id"`
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// DeliveryService generates report PDFs and emails them.
type DeliveryService struct {
	*Client
}

// NewDelivery wraps c as the delivery client.
func NewDelivery(c *Client) *DeliveryService { return &DeliveryService{Client: c} }

// Request schedules a delivery.
func (d *DeliveryService) Request(ctx context.Context, req DeliveryRequest) (Delivery, error) {
	var out Delivery
	err := d.Do(ctx, Request{Method: http.MethodPost, Path: "/deliveries", Body: req}, &out)
	return out, err
}
