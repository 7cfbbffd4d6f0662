package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmcleod/fpsim/hat"
	"github.com/jmcleod/fpsim/journal"
	"github.com/jmcleod/fpsim/session"
)

const maxBodySize = 64 << 10

// decodeJSON decodes the request body into a T, writing a 400 on failure.
// An empty body decodes to the zero value.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

// decodeToken parses a base64 token. An empty string yields a nil token,
// which the session rejects when tokens are validated.
func decodeToken(encoded string) (*hat.Token, error) {
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", hat.ErrMalformedToken)
	}
	return hat.Parse(raw)
}

// operationResponse collects the events journaled so far for op.
func (a *API) operationResponse(sessionID string, op *session.Operation) (OperationResponse, error) {
	events, err := a.sessions.Events(sessionID, 0)
	if err != nil {
		return OperationResponse{}, err
	}
	resp := OperationResponse{OperationID: op.ID, Name: op.Name, Events: []journal.Event{}}
	for _, ev := range events {
		if ev.OperationID != op.ID {
			continue
		}
		resp.Events = append(resp.Events, ev)
		if ev.Terminal {
			resp.Done = true
		}
	}
	return resp, nil
}

// respondOperation writes the operation for a started request, logging the
// start for audit.
func (a *API) respondOperation(w http.ResponseWriter, r *http.Request, s *session.Session, op *session.Operation, err error) {
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logSession(AuditOperationStarted, r, s.ID,
		slog.String("operation", op.Name), slog.String("operation_id", op.ID))

	resp, err := a.operationResponse(s.ID, op)
	if err != nil {
		mapError(w, err)
		return
	}
	status := http.StatusOK
	if !resp.Done {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

// ListSensors handles GET /sensors.
func (a *API) ListSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ListSensorsResponse{Sensors: a.sessions.Sensors()})
}

// MintToken handles POST /tokens.
// Signs a token bound to the given challenge, standing in for the
// credential verifier that would normally issue it.
func (a *API) MintToken(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[MintTokenRequest](w, r)
	if !ok {
		return
	}
	tok, err := a.sessions.MintToken(req.Challenge, req.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	raw, err := tok.MarshalBinary()
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.log(AuditTokenMinted, r, slog.Int64("user_id", req.UserID))
	writeJSON(w, http.StatusCreated, TokenResponse{Token: base64.StdEncoding.EncodeToString(raw)})
}

// OpenSession handles POST /sessions.
func (a *API) OpenSession(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[OpenSessionRequest](w, r)
	if !ok {
		return
	}
	s, err := a.sessions.Open(req.SensorID, req.UserID)
	if err != nil {
		a.audit.logFailure(AuditSessionOpenRejected, r, err.Error(), slog.Int("sensor_id", req.SensorID))
		mapError(w, err)
		return
	}
	a.audit.logSession(AuditSessionOpened, r, s.ID, slog.Int("sensor_id", s.SensorID), slog.Int64("user_id", s.UserID))
	writeJSON(w, http.StatusCreated, OpenSessionResponse{
		SessionID: s.ID,
		SensorID:  s.SensorID,
		UserID:    s.UserID,
	})
}

// CloseSession handles DELETE /sessions/{sessionID}.
func (a *API) CloseSession(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	if err := s.Close(); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logSession(AuditSessionClosed, r, s.ID)
	w.WriteHeader(http.StatusNoContent)
}

// ListEvents handles GET /sessions/{sessionID}/events.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	after, limit := parseEventQuery(r)
	events, err := a.sessions.Events(chi.URLParam(r, "sessionID"), after)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pageEvents(events, after, limit))
}

// GetOperation handles GET /sessions/{sessionID}/operations/{operationID}.
func (a *API) GetOperation(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	opID := chi.URLParam(r, "operationID")

	events, err := a.sessions.Events(sessionID, 0)
	if err != nil {
		mapError(w, err)
		return
	}
	resp := OperationResponse{OperationID: opID, Events: []journal.Event{}}
	for _, ev := range events {
		if ev.OperationID != opID {
			continue
		}
		resp.Events = append(resp.Events, ev)
		resp.Done = resp.Done || ev.Terminal
	}
	if len(resp.Events) == 0 {
		mapError(w, fmt.Errorf("%s: %w", opID, session.ErrOperationNotFound))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GenerateChallenge handles POST /sessions/{sessionID}/challenge.
func (a *API) GenerateChallenge(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	op, err := s.GenerateChallenge()
	a.respondOperation(w, r, s, op, err)
}

// RevokeChallenge handles DELETE /sessions/{sessionID}/challenge/{challenge}.
func (a *API) RevokeChallenge(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	challenge, err := strconv.ParseInt(chi.URLParam(r, "challenge"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid challenge")
		return
	}
	op, err := s.RevokeChallenge(challenge)
	a.respondOperation(w, r, s, op, err)
}

// Enroll handles POST /sessions/{sessionID}/enroll.
func (a *API) Enroll(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	req, ok := decodeJSON[TokenRequest](w, r)
	if !ok {
		return
	}
	tok, err := decodeToken(req.Token)
	if err != nil {
		a.audit.logFailure(AuditTokenRejected, r, err.Error(), slog.String("session_id", s.ID))
		mapError(w, err)
		return
	}
	op, err := s.Enroll(tok)
	if err != nil {
		a.audit.logFailure(AuditTokenRejected, r, err.Error(), slog.String("session_id", s.ID))
	}
	a.respondOperation(w, r, s, op, err)
}

// Authenticate handles POST /sessions/{sessionID}/authenticate.
func (a *API) Authenticate(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	req, ok := decodeJSON[AuthenticateRequest](w, r)
	if !ok {
		return
	}
	op, err := s.Authenticate(req.OperationID)
	a.respondOperation(w, r, s, op, err)
}

// DetectInteraction handles POST /sessions/{sessionID}/detect-interaction.
func (a *API) DetectInteraction(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	op, err := s.DetectInteraction()
	a.respondOperation(w, r, s, op, err)
}

// CancelOperation handles POST /sessions/{sessionID}/operations/{operationID}/cancel.
func (a *API) CancelOperation(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	opID := chi.URLParam(r, "operationID")
	if err := s.Cancel(opID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logSession(AuditOperationCanceled, r, s.ID, slog.String("operation_id", opID))
	w.WriteHeader(http.StatusAccepted)
}

// EnumerateEnrollments handles GET /sessions/{sessionID}/enrollments.
func (a *API) EnumerateEnrollments(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	op, err := s.EnumerateEnrollments()
	a.respondOperation(w, r, s, op, err)
}

// RemoveEnrollments handles DELETE /sessions/{sessionID}/enrollments.
func (a *API) RemoveEnrollments(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	req, ok := decodeJSON[RemoveEnrollmentsRequest](w, r)
	if !ok {
		return
	}
	op, err := s.RemoveEnrollments(req.EnrollmentIDs)
	if err == nil {
		a.audit.logSession(AuditEnrollmentsRemoved, r, s.ID, slog.Int("requested", len(req.EnrollmentIDs)))
	}
	a.respondOperation(w, r, s, op, err)
}

// GetAuthenticatorID handles GET /sessions/{sessionID}/authenticator-id.
func (a *API) GetAuthenticatorID(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	op, err := s.GetAuthenticatorID()
	a.respondOperation(w, r, s, op, err)
}

// InvalidateAuthenticatorID handles POST /sessions/{sessionID}/authenticator-id/invalidate.
func (a *API) InvalidateAuthenticatorID(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	op, err := s.InvalidateAuthenticatorID()
	if err == nil {
		a.audit.logSession(AuditAuthenticatorIDReset, r, s.ID)
	}
	a.respondOperation(w, r, s, op, err)
}

// ResetLockout handles POST /sessions/{sessionID}/lockout/reset.
func (a *API) ResetLockout(w http.ResponseWriter, r *http.Request) {
	s := sessionFromContext(r.Context())
	req, ok := decodeJSON[TokenRequest](w, r)
	if !ok {
		return
	}
	tok, err := decodeToken(req.Token)
	if err != nil {
		a.audit.logFailure(AuditTokenRejected, r, err.Error(), slog.String("session_id", s.ID))
		mapError(w, err)
		return
	}
	op, err := s.ResetLockout(tok)
	if err != nil {
		a.audit.logFailure(AuditTokenRejected, r, err.Error(), slog.String("session_id", s.ID))
	} else {
		a.audit.logSession(AuditLockoutReset, r, s.ID)
	}
	a.respondOperation(w, r, s, op, err)
}
