package core

import "golang.org/x/crypto/bcrypt"

type PasswordVerifier interface {
	Verify(hash, password string) bool
}

// BcryptVerifier compares against bcrypt hashes in constant time.
type BcryptVerifier struct{}

func (BcryptVerifier) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
