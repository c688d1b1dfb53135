package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 72 // bcrypt input cap

	passwordLetters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	passwordDigits  = "0123456789"
	passwordSymbols = "!@#$%^&*()-_=+[]{}<>?.,;:"

	temporaryPasswordLength = 10
)

// ValidatePasswordFormat checks a candidate password against the platform
// policy: minimum length, at least one letter, one digit, and one symbol
// from the allowed set. Empty input is rejected explicitly rather than
// falling through as trivially valid.
func ValidatePasswordFormat(password string) error {
	if password == "" {
		return FormatError{Reason: "password is empty"}
	}
	if len(password) < minPasswordLength {
		return FormatError{Reason: fmt.Sprintf("must be at least %d characters", minPasswordLength)}
	}
	if len(password) > maxPasswordLength {
		return FormatError{Reason: fmt.Sprintf("must be at most %d characters", maxPasswordLength)}
	}

	var hasLetter, hasDigit, hasSymbol bool
	for _, c := range password {
		switch {
		case strings.ContainsRune(passwordLetters, c):
			hasLetter = true
		case strings.ContainsRune(passwordDigits, c):
			hasDigit = true
		case strings.ContainsRune(passwordSymbols, c):
			hasSymbol = true
		}
	}

	switch {
	case !hasLetter:
		return FormatError{Reason: "must contain at least one letter"}
	case !hasDigit:
		return FormatError{Reason: "must contain at least one digit"}
	case !hasSymbol:
		return FormatError{Reason: "must contain at least one symbol (" + passwordSymbols + ")"}
	}

	return nil
}

// HashPassword validates the password against the policy and returns its
// bcrypt hash. Hashing is never attempted on non-compliant input, so the
// store can never hold a hash for a password the policy would later reject.
// bcrypt salts internally, so hashing the same password twice yields
// different outputs that both verify.
func HashPassword(password string) (string, error) {
	if err := ValidatePasswordFormat(password); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	return string(hash), nil
}

// VerifyPassword reports whether the password matches the stored hash.
// Malformed hash input is a mismatch, never an error; timing-safe
// comparison is bcrypt's responsibility.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateTemporaryPassword produces a password that satisfies
// ValidatePasswordFormat by construction: one letter, one digit, and one
// symbol are placed first, the rest is padded from the combined alphabet,
// and the result is shuffled. No generate-and-retry loop.
func GenerateTemporaryPassword() (string, error) {
	combined := passwordLetters + passwordDigits + passwordSymbols

	chars := make([]byte, 0, temporaryPasswordLength)
	for _, alphabet := range []string{passwordLetters, passwordDigits, passwordSymbols} {
		c, err := randomChar(alphabet)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}
	for len(chars) < temporaryPasswordLength {
		c, err := randomChar(combined)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Fisher-Yates so the mandatory classes are not always in front.
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomIndex(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

func randomChar(alphabet string) (byte, error) {
	i, err := randomIndex(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randomIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("read random index: %w", err)
	}
	return int(v.Int64()), nil
}
