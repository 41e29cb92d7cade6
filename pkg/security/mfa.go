package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	BackupCodeCount = 8
	backupCodeBytes = 4 // 8 hex characters
)

// totpOpts pins the standard parameters. Skew 0 accepts the current 30s
// step only.
var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      0,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// NewTOTPKey generates a fresh Base32 secret together with its otpauth://
// provisioning URI (compatible with Google Authenticator).
func NewTOTPKey(issuer, accountName string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      totpOpts.Period,
		Digits:      totpOpts.Digits,
		Algorithm:   totpOpts.Algorithm,
	})
}

// TOTPCode computes the code for the time step containing t.
func TOTPCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t, totpOpts)
}

// VerifyTOTP checks a submitted code against the current step in constant time.
func VerifyTOTP(code, secret string, t time.Time) bool {
	if secret == "" {
		return false
	}
	expected, err := TOTPCode(secret, t)
	if err != nil {
		return false
	}
	return ConstantTimeEqual(code, expected)
}

// GenerateBackupCodes returns BackupCodeCount distinct uppercase hex codes.
func GenerateBackupCodes() ([]string, error) {
	codes := make([]string, 0, BackupCodeCount)
	seen := make(map[string]struct{}, BackupCodeCount)
	buf := make([]byte, backupCodeBytes)
	for len(codes) < BackupCodeCount {
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// RandomToken returns n random bytes hex-encoded.
func RandomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ConstantTimeEqual compares two secrets without leaking where they differ
// or how long they are: both sides are hashed to a fixed width first.
func ConstantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
