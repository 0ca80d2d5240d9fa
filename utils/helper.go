package utils

import (
	"strings"

	"github.com/google/uuid"
)

// ValidateId checks that id is a store identifier and returns it in canonical form.
func ValidateId(id string) (string, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return "", Wrap(ErrInvalidIdentifier, err, id)
	}
	return parsed.String(), nil
}

func NewId() string {
	return uuid.NewString()
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
