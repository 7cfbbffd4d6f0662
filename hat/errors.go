package hat

import "errors"

var (
	// ErrMalformedToken indicates the token bytes could not be decoded.
	ErrMalformedToken = errors.New("malformed auth token")
	// ErrInvalidToken indicates the token MAC or challenge did not verify.
	ErrInvalidToken = errors.New("invalid auth token")
)
