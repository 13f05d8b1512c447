package auth

import (
	"fmt"

	"github.com/alexedwards/argon2id"
)

// HashAPIKey produces the value stored in ADMIN_API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	hash, err := argon2id.CreateHash(key, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("failed to hash key: %w", err)
	}
	return hash, nil
}

func CheckAPIKey(key, hash string) (bool, error) {
	match, err := argon2id.ComparePasswordAndHash(key, hash)
	if err != nil {
		return false, fmt.Errorf("failed to compare key: %w", err)
	}
	return match, nil
}
