package auth

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength applies to every password set through the API or CLI.
const MinPasswordLength = 6

var (
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// HashPassword returns a bcrypt hash. A cost of zero uses bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return "", fmt.Errorf("bcrypt cost %d out of range", cost)
	}
	// bcrypt ignores input past 72 bytes
	if len(password) > 72 {
		return "", errors.New("password must be at most 72 bytes")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with a stored hash.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// unknownUserHashes caches one throwaway hash per bcrypt cost.
var unknownUserHashes sync.Map

// CheckUnknownUser does the same bcrypt work as CheckPassword against a
// throwaway hash of the given cost and always fails. Login calls it when the
// username does not exist so response time does not reveal which names do.
func CheckUnknownUser(password string, cost int) error {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, ok := unknownUserHashes.Load(cost)
	if !ok {
		generated, err := bcrypt.GenerateFromPassword([]byte("unknown-user-placeholder"), cost)
		if err != nil {
			return ErrInvalidCredentials
		}
		hash, _ = unknownUserHashes.LoadOrStore(cost, generated)
	}
	_ = bcrypt.CompareHashAndPassword(hash.([]byte), []byte(password))
	return ErrInvalidCredentials
}
