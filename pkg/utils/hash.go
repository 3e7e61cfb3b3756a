package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// HashKey hashes a plain secret (e.g. a session host key) using bcrypt.
func HashKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckKey compares a plain secret with its bcrypt hash.
func CheckKey(plain, hashed string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
	return err == nil
}
