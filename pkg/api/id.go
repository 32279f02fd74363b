package api

import "github.com/google/uuid"

// NewSessionID returns a random (version 4) UUID string.
func NewSessionID() string {
	return uuid.NewString()
}

// ValidateSessionID reports whether id is a UUID in canonical form.
func ValidateSessionID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
