package security

import "github.com/google/uuid"

// NewID returns a random identifier for a new session
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether id has the shape NewID produces
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
