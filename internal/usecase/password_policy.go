package usecase

import (
	"strings"
	"unicode"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
)

const (
	MinPasswordLength = 8
	passwordSymbols   = ` !@#$%^&*()_+-=[]{};':"\|,.<>/?`
)

// PasswordPolicy validates password strength. It is stateless.
type PasswordPolicy struct{}

type passwordRule struct {
	ok     func(string) bool
	reason string
}

var passwordRules = []passwordRule{
	{func(s string) bool { return len([]rune(s)) >= MinPasswordLength }, "password must be at least 8 characters long"},
	{func(s string) bool { return strings.IndexFunc(s, unicode.IsUpper) >= 0 }, "password must contain at least one uppercase letter"},
	{func(s string) bool { return strings.IndexFunc(s, unicode.IsLower) >= 0 }, "password must contain at least one lowercase letter"},
	{func(s string) bool { return strings.IndexFunc(s, unicode.IsDigit) >= 0 }, "password must contain at least one digit"},
	{func(s string) bool { return strings.ContainsAny(s, passwordSymbols) }, "password must contain at least one special character"},
}

// Validate returns a *domain.PolicyError naming the first rule the
// candidate breaks, or nil when it is acceptable.
func (PasswordPolicy) Validate(candidate string) error {
	for _, rule := range passwordRules {
		if !rule.ok(candidate) {
			return &domain.PolicyError{Reason: rule.reason}
		}
	}
	return nil
}
