package api

import (
	"github.com/jmcleod/fpsim/journal"
	"github.com/jmcleod/fpsim/session"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ListSensorsResponse lists the simulated sensors.
type ListSensorsResponse struct {
	Sensors []session.SensorInfo `json:"sensors"`
}

// OpenSessionRequest opens a session on a sensor.
type OpenSessionRequest struct {
	SensorID int   `json:"sensor_id"`
	UserID   int64 `json:"user_id"`
}

// OpenSessionResponse identifies the new session.
type OpenSessionResponse struct {
	SessionID string `json:"session_id"`
	SensorID  int    `json:"sensor_id"`
	UserID    int64  `json:"user_id"`
}

// MintTokenRequest asks for a signed token bound to a challenge.
type MintTokenRequest struct {
	Challenge int64 `json:"challenge"`
	UserID    int64 `json:"user_id"`
}

// TokenResponse carries a base64-encoded auth token.
type TokenResponse struct {
	Token string `json:"token"`
}

// TokenRequest carries a base64-encoded auth token for enroll and lockout reset.
type TokenRequest struct {
	Token string `json:"token"`
}

// AuthenticateRequest starts an authentication.
type AuthenticateRequest struct {
	OperationID int64 `json:"operation_id"`
}

// RemoveEnrollmentsRequest lists the enrollments to remove.
type RemoveEnrollmentsRequest struct {
	EnrollmentIDs []int32 `json:"enrollment_ids"`
}

// OperationResponse describes an operation and the events journaled for it
// so far. Synchronous operations are always Done.
type OperationResponse struct {
	OperationID string          `json:"operation_id"`
	Name        string          `json:"name,omitempty"`
	Done        bool            `json:"done"`
	Events      []journal.Event `json:"events"`
}

// EventsResponse is a page of a session's journal.
type EventsResponse struct {
	Events    []journal.Event `json:"events"`
	NextAfter uint64          `json:"next_after"`
	HasMore   bool            `json:"has_more"`
}
