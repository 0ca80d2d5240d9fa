package utils

import "golang.org/x/crypto/bcrypt"

func HashPassword(s string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ComparePassword returns ErrUnauthorized on mismatch.
func ComparePassword(hashed string, normal string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(normal)); err != nil {
		return Wrap(ErrUnauthorized, nil, "invalid email or password")
	}
	return nil
}
