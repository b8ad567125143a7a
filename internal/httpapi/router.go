// Package httpapi exposes the rent reporting flows as a JSON API for the
// browser and terminal shells. Submission endpoints answer with the
// submission result; everything else uses the status/data envelope.
package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/components/geocode"
	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/clock"
	"github.com/goliatone/go-rentreport/pkg/forms"
	"github.com/goliatone/go-rentreport/pkg/registration"
	"github.com/goliatone/go-rentreport/pkg/rentreport"
	"github.com/goliatone/go-rentreport/pkg/tracking"
	"github.com/goliatone/go-rentreport/pkg/validation"
	"github.com/goliatone/go-rentreport/pkg/views"
)

// Portal opens customer-portal sessions. *client.Billing satisfies it.
type Portal interface {
	CreatePortalSession(ctx context.Context, token, returnURL string) (client.BillingSession, error)
}

// Deps wires the API.
type Deps struct {
	Forms        *forms.Registry
	Validator    *validation.Validator
	Provider     auth.Provider
	Reports      *rentreport.Service
	Registration *registration.Funnel
	Tracker      *tracking.Tracker
	Portal       Portal
	Geocode      *geocode.Component
	Views        *views.Renderer
	Clock        clock.Clock
	Logger       *zap.Logger

	PortalReturnURL string
}

// Server holds the handlers.
type Server struct {
	forms        *forms.Registry
	validator    *validation.Validator
	provider     auth.Provider
	reports      *rentreport.Service
	registration *registration.Funnel
	tracker      *tracking.Tracker
	portal       Portal
	geocode      *geocode.Component
	views        *views.Renderer
	clock        clock.Clock
	logger       *zap.Logger

	portalReturnURL string
}

// NewServer validates deps and builds a Server.
func NewServer(deps Deps) (*Server, error) {
	if deps.Forms == nil || deps.Provider == nil || deps.Reports == nil || deps.Registration == nil {
		return nil, errors.New("httpapi: forms, provider, reports and registration are required")
	}
	s := &Server{
		forms:           deps.Forms,
		validator:       deps.Validator,
		provider:        deps.Provider,
		reports:         deps.Reports,
		registration:    deps.Registration,
		tracker:         deps.Tracker,
		portal:          deps.Portal,
		geocode:         deps.Geocode,
		views:           deps.Views,
		clock:           clock.OrSystem(deps.Clock),
		logger:          deps.Logger,
		portalReturnURL: deps.PortalReturnURL,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.validator == nil {
		s.validator = validation.New(validation.WithClock(s.clock))
	}
	return s, nil
}

// NewRouter builds the server and its routes.
func NewRouter(deps Deps) (http.Handler, error) {
	s, err := NewServer(deps)
	if err != nil {
		return nil, err
	}
	return s.Routes(), nil
}

// Routes registers every route and the middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/forms", s.listForms)
		r.Get("/forms/{formID}", s.getForm)
		r.Get("/forms/{formID}/defaults", s.formDefaults)
		r.Post("/forms/{formID}/validate", s.validateForm)
		r.Post("/forms/{formID}/fields/{field}/validate", s.validateField)

		r.Post("/auth/sign-in", s.signIn)
		r.Post("/auth/confirm", s.confirmSignUp)
		r.Post("/auth/mfa", s.submitMFA)
		r.Post("/auth/new-password", s.completeNewPassword)
		r.Post("/auth/password/forgot", s.forgotPassword)
		r.Post("/auth/password/reset", s.resetPassword)

		r.Post("/registration", s.register)
		r.Post("/registration/{draftID}/complete", s.completeRegistration)

		r.Post("/tracking", s.startTracking)
		r.Patch("/tracking/{sessionID}", s.updateTracking)

		r.Post("/public/back-rent", s.submitPublicBackRent)

		r.Post("/admin/sign-in", s.adminSignIn)
		r.Get("/admin/members", s.adminMembers)

		r.Group(func(r chi.Router) {
			r.Use(s.memberMiddleware)
			r.Post("/auth/sign-out", s.signOut)
			r.Get("/reports", s.listReports)
			r.Post("/reports", s.submitRentReport)
			r.Post("/back-rent", s.submitBackRent)
			r.Get("/documents", s.documents)
			r.Get("/credit-score", s.creditScore)
			r.Post("/billing/portal", s.billingPortal)
		})
	})

	if s.geocode != nil {
		if _, err := s.geocode.RegisterRoutes(r, "/"); err != nil {
			s.logger.Error("geocode routes not registered", zap.Error(err))
		}
	}
	return r
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, map[string]string{"state": "ok"})
}
