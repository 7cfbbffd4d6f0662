// Package hat implements the hardware authentication token exchanged between
// the sensor simulator and its callers, along with a fake minter that signs
// tokens with a keyed MAC.
package hat

import (
	"encoding/binary"
	"fmt"
	"time"
)

// AuthenticatorType identifies which authenticator produced a token.
type AuthenticatorType uint32

const (
	AuthenticatorNone        AuthenticatorType = 0
	AuthenticatorPassword    AuthenticatorType = 1
	AuthenticatorFingerprint AuthenticatorType = 2
)

const (
	tokenVersion = 0
	// MACSize is the length of the token MAC in bytes.
	MACSize = 32
	// EncodedSize is the length of a binary-encoded token.
	EncodedSize = 1 + 8 + 8 + 8 + 4 + 8 + MACSize
)

// Token is a hardware authentication token. The simulator treats tokens it
// receives as opaque; validation belongs to the session layer.
type Token struct {
	Challenge         int64
	UserID            int64
	AuthenticatorID   int64
	AuthenticatorType AuthenticatorType
	Timestamp         time.Duration
	MAC               [MACSize]byte
}

// signedBytes returns every encoded field except the MAC.
func (t *Token) signedBytes() []byte {
	buf := make([]byte, EncodedSize-MACSize)
	buf[0] = tokenVersion
	binary.BigEndian.PutUint64(buf[1:9], uint64(t.Challenge))
	binary.BigEndian.PutUint64(buf[9:17], uint64(t.UserID))
	binary.BigEndian.PutUint64(buf[17:25], uint64(t.AuthenticatorID))
	binary.BigEndian.PutUint32(buf[25:29], uint32(t.AuthenticatorType))
	binary.BigEndian.PutUint64(buf[29:37], uint64(t.Timestamp.Milliseconds()))
	return buf
}

// MarshalBinary encodes the token in its fixed big-endian layout.
func (t *Token) MarshalBinary() ([]byte, error) {
	return append(t.signedBytes(), t.MAC[:]...), nil
}

// UnmarshalBinary decodes a token produced by MarshalBinary.
func (t *Token) UnmarshalBinary(data []byte) error {
	if len(data) != EncodedSize {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedToken, EncodedSize, len(data))
	}
	if data[0] != tokenVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrMalformedToken, data[0])
	}
	t.Challenge = int64(binary.BigEndian.Uint64(data[1:9]))
	t.UserID = int64(binary.BigEndian.Uint64(data[9:17]))
	t.AuthenticatorID = int64(binary.BigEndian.Uint64(data[17:25]))
	t.AuthenticatorType = AuthenticatorType(binary.BigEndian.Uint32(data[25:29]))
	t.Timestamp = time.Duration(binary.BigEndian.Uint64(data[29:37])) * time.Millisecond
	copy(t.MAC[:], data[37:])
	return nil
}

// Parse decodes a binary token.
func Parse(data []byte) (*Token, error) {
	var t Token
	if err := t.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return &t, nil
}
