package hat

import (
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/blake2b"
)

// KeySize is the length of a signer key in bytes.
const KeySize = 32

// Signer mints and verifies tokens using a keyed BLAKE2b-256 MAC.
// The key lives in a memguard Enclave and is only decrypted for the
// duration of a single MAC computation.
type Signer struct {
	mu    sync.RWMutex
	key   *memguard.Enclave
	start time.Time
}

// NewSigner returns a Signer using key. The key slice is wiped.
func NewSigner(key []byte) (*Signer, error) {
	if len(key) == 0 || len(key) > blake2b.Size {
		return nil, fmt.Errorf("signer key must be 1-%d bytes, got %d", blake2b.Size, len(key))
	}
	return &Signer{key: memguard.NewEnclave(key), start: time.Now()}, nil
}

// NewRandomSigner returns a Signer with a freshly generated key.
func NewRandomSigner() *Signer {
	return &Signer{key: memguard.NewEnclaveRandom(KeySize), start: time.Now()}
}

// Mint builds and signs a token for challenge, stamped with the time
// elapsed since the signer was created.
func (s *Signer) Mint(challenge, userID int64, typ AuthenticatorType) (*Token, error) {
	t := &Token{
		Challenge:         challenge,
		UserID:            userID,
		AuthenticatorType: typ,
		Timestamp:         time.Since(s.start),
	}
	if err := s.Sign(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Sign computes and stores the MAC over t's fields.
func (s *Signer) Sign(t *Token) error {
	mac, err := s.mac(t)
	if err != nil {
		return err
	}
	copy(t.MAC[:], mac)
	return nil
}

// Verify checks t's MAC in constant time.
func (s *Signer) Verify(t *Token) error {
	mac, err := s.mac(t)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(mac, t.MAC[:]) != 1 {
		return fmt.Errorf("%w: MAC mismatch", ErrInvalidToken)
	}
	return nil
}

func (s *Signer) mac(t *Token) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.key == nil {
		return nil, fmt.Errorf("signer destroyed")
	}

	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening signer key: %w", err)
	}
	defer buf.Destroy()

	h, err := blake2b.New256(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("initialising MAC: %w", err)
	}
	h.Write(t.signedBytes())
	return h.Sum(nil), nil
}

// Destroy drops the key enclave. The signer cannot be used afterwards.
func (s *Signer) Destroy() {
	s.mu.Lock()
	s.key = nil
	s.mu.Unlock()
}
