package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrSchedulerKeyMismatch is returned when a presented key does not match the stored hash
var ErrSchedulerKeyMismatch = errors.New("scheduler key mismatch")

// HashSchedulerKey hashes the shared key an external scheduler presents
func HashSchedulerKey(key string) (string, error) {
	if len(key) < 16 {
		return "", errors.New("scheduler key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// SchedulerKey verifies keys presented on the external sweep endpoint
type SchedulerKey struct {
	hash []byte
}

// NewSchedulerKey wraps a bcrypt hash. An empty hash disables the endpoint.
func NewSchedulerKey(hash string) *SchedulerKey {
	return &SchedulerKey{hash: []byte(hash)}
}

// Enabled reports whether a key hash is configured
func (k *SchedulerKey) Enabled() bool {
	return len(k.hash) > 0
}

// Verify checks key against the stored hash
func (k *SchedulerKey) Verify(key string) error {
	if !k.Enabled() || key == "" {
		return ErrSchedulerKeyMismatch
	}
	if err := bcrypt.CompareHashAndPassword(k.hash, []byte(key)); err != nil {
		return ErrSchedulerKeyMismatch
	}
	return nil
}
