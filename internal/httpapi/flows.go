package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/goliatone/go-rentreport/pkg/auth"
	"github.com/goliatone/go-rentreport/pkg/client"
	"github.com/goliatone/go-rentreport/pkg/rentreport"
	"github.com/goliatone/go-rentreport/pkg/session"
	"github.com/goliatone/go-rentreport/pkg/tracking"
)

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	s.logger.Error("request failed",
		zap.String("operation", operation),
		zap.String("request_id", requestIDFromContext(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error")
}

// upstreamError maps a read-model failure onto the error envelope.
func (s *Server) upstreamError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	switch {
	case errors.Is(err, rentreport.ErrNoSession), errors.Is(err, client.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "session expired")
	case errors.Is(err, client.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "resource not found")
	default:
		s.logger.Warn("upstream read failed",
			zap.String("operation", operation),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, CodeUpstream, "the service is unavailable right now")
	}
}

func (s *Server) member(r *http.Request) auth.Session {
	sess, _ := sessionFromContext(r.Context())
	return sess
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	trackingID := popString(raw, "trackingId")
	if trackingID == "" {
		trackingID = r.Header.Get(HeaderTrackingID)
	}
	s.writeResult(w, r, s.registration.Register(r.Context(), raw, trackingID))
}

func (s *Server) completeRegistration(w http.ResponseWriter, r *http.Request) {
	s.writeResult(w, r, s.registration.Complete(r.Context(), chi.URLParam(r, "draftID")))
}

func (s *Server) startTracking(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "tracking is disabled")
		return
	}
	raw, err := decodeJSONObject(w, r)
	if err != nil && !errors.Is(err, errEmptyBody) {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	step := popString(raw, "step")
	sess, err := s.tracker.Start(r.Context(), tracking.SnapshotFromValues(raw, step))
	if err != nil {
		s.upstreamError(w, r, "start tracking", err)
		return
	}
	writeSuccess(w, http.StatusCreated, sess)
}

func (s *Server) updateTracking(w http.ResponseWriter, r *http.Request) {
	if s.tracker == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "tracking is disabled")
		return
	}
	raw, err := decodeJSONObject(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	step := popString(raw, "step")
	sess, err := s.tracker.Update(chi.URLParam(r, "sessionID"), tracking.SnapshotFromValues(raw, step))
	if errors.Is(err, tracking.ErrUnknownSession) {
		writeError(w, http.StatusNotFound, CodeNotFound, "tracking session not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "update tracking", err)
		return
	}
	writeSuccess(w, http.StatusAccepted, sess)
}

func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.reports.ListReports(r.Context(), s.member(r))
	if err != nil {
		s.upstreamError(w, r, "list reports", err)
		return
	}
	if reports == nil {
		reports = []client.RentReport{}
	}
	writeSuccess(w, http.StatusOK, reports)
}

func (s *Server) submitRentReport(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	s.writeResult(w, r, s.reports.SubmitRentReport(r.Context(), s.member(r), raw))
}

func (s *Server) submitBackRent(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	s.writeResult(w, r, s.reports.SubmitBackRent(r.Context(), s.member(r), raw))
}

func (s *Server) submitPublicBackRent(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	s.writeResult(w, r, s.reports.SubmitPublicBackRent(r.Context(), raw))
}

func (s *Server) documents(w http.ResponseWriter, r *http.Request) {
	docs, err := s.reports.Documents(r.Context(), s.member(r))
	if err != nil {
		s.upstreamError(w, r, "documents", err)
		return
	}
	if docs == nil {
		docs = []client.Document{}
	}
	writeSuccess(w, http.StatusOK, docs)
}

func (s *Server) creditScore(w http.ResponseWriter, r *http.Request) {
	score, err := s.reports.CreditScore(r.Context(), s.member(r))
	if err != nil {
		s.upstreamError(w, r, "credit score", err)
		return
	}
	writeSuccess(w, http.StatusOK, score)
}

func (s *Server) billingPortal(w http.ResponseWriter, r *http.Request) {
	if s.portal == nil {
		writeError(w, http.StatusNotFound, CodeNotFound, "billing is disabled")
		return
	}
	sess, err := s.portal.CreatePortalSession(r.Context(), s.member(r).BearerToken(), s.portalReturnURL)
	if err != nil {
		s.upstreamError(w, r, "billing portal", err)
		return
	}
	writeSuccess(w, http.StatusOK, sess)
}

func (s *Server) adminSignIn(w http.ResponseWriter, r *http.Request) {
	raw, err := decodeValues(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	s.writeResult(w, r, s.reports.AdminSignIn(r.Context(), raw))
}

func (s *Server) adminMembers(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.Header.Get(HeaderAdminSession))
	if id == "" {
		writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing admin session")
		return
	}
	members, err := s.reports.Members(r.Context(), id)
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrAdminTokenExpired):
		writeError(w, http.StatusUnauthorized, CodeSessionExpired, "admin session expired")
		return
	case err != nil:
		s.upstreamError(w, r, "list members", err)
		return
	}
	if members == nil {
		members = []client.MemberSummary{}
	}
	writeSuccess(w, http.StatusOK, members)
}
