package session

import "errors"

var (
	// ErrSessionNotFound indicates no open session has the given id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSensorNotFound indicates the sensor id is out of range.
	ErrSensorNotFound = errors.New("sensor not found")
	// ErrSensorBusy indicates the sensor already has an open session.
	ErrSensorBusy = errors.New("sensor already has an open session")
	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.New("session closed")
	// ErrOperationNotFound indicates the operation is unknown or already finished.
	ErrOperationNotFound = errors.New("operation not found")
	// ErrNoSigner indicates tokens cannot be minted without a signer.
	ErrNoSigner = errors.New("token signer not configured")
)
