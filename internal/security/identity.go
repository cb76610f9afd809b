package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// AdminIdentity is the single configured administrator.
type AdminIdentity struct {
	usernameDigest [32]byte
	passwordHash   []byte
}

// NewAdminIdentity accepts either a bcrypt hash or a plain password, which is
// hashed once here so the comparison path is the same in both cases.
func NewAdminIdentity(username, password, passwordHash string) (*AdminIdentity, error) {
	if username == "" {
		return nil, errors.New("admin username is empty")
	}

	hash := []byte(passwordHash)
	if len(hash) == 0 {
		if password == "" {
			return nil, errors.New("admin password is empty")
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("ошибка хэширования пароля: %w", err)
		}
	} else if _, err := bcrypt.Cost(hash); err != nil {
		return nil, fmt.Errorf("невалидный bcrypt хэш: %w", err)
	}

	return &AdminIdentity{
		usernameDigest: sha256.Sum256([]byte(username)),
		passwordHash:   hash,
	}, nil
}

// Verify compares both fields without short-circuiting, so a wrong username
// costs the same bcrypt round as a wrong password.
func (a *AdminIdentity) Verify(username, password string) bool {
	digest := sha256.Sum256([]byte(username))
	usernameOK := subtle.ConstantTimeCompare(digest[:], a.usernameDigest[:]) == 1
	passwordOK := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
	return usernameOK && passwordOK
}
