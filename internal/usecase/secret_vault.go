package usecase

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/FilipeAphrody/sentinel-accounts/internal/domain"
	"github.com/FilipeAphrody/sentinel-accounts/pkg/security"
)

// errUnchanged aborts an AccountRepository.Update without writing.
var errUnchanged = errors.New("unchanged")

// Enrollment is the material handed to the user when a secret is issued.
type Enrollment struct {
	Secret          string   `json:"-"`
	ProvisioningURI string   `json:"provisioning_uri"`
	BackupCodes     []string `json:"backup_codes"`
}

// SecretVault owns per-account second-factor material: the TOTP secret and
// the set of unused backup codes.
type SecretVault struct {
	accounts domain.AccountRepository
	issuer   string
	now      func() time.Time
}

func NewSecretVault(accounts domain.AccountRepository, issuer string) *SecretVault {
	return &SecretVault{accounts: accounts, issuer: issuer, now: time.Now}
}

// IssueSecret replaces any prior secret and regenerates the backup codes
// whether or not 2FA is already on. It is the unconditional re-issue form;
// the enrolment route uses Enroll.
func (v *SecretVault) IssueSecret(ctx context.Context, accountID string) (*Enrollment, error) {
	return v.issue(ctx, accountID, false)
}

// Enroll is IssueSecret for an account that has not turned 2FA on yet. The
// enabled check and the write happen under the same account lock.
func (v *SecretVault) Enroll(ctx context.Context, accountID string) (*Enrollment, error) {
	return v.issue(ctx, accountID, true)
}

func (v *SecretVault) issue(ctx context.Context, accountID string, requireDisabled bool) (*Enrollment, error) {
	var enrollment *Enrollment
	_, err := v.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		if requireDisabled && a.MFAEnabled {
			return domain.ErrTwoFactorAlreadyConfigured
		}

		name := a.Contact
		if name == "" {
			name = a.Handle
		}
		key, err := security.NewTOTPKey(v.issuer, name)
		if err != nil {
			return err
		}
		codes, err := security.GenerateBackupCodes()
		if err != nil {
			return err
		}

		a.MFASecret = key.Secret()
		a.BackupCodes = codes
		enrollment = &Enrollment{
			Secret:          key.Secret(),
			ProvisioningURI: key.URL(),
			BackupCodes:     slices.Clone(codes),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return enrollment, nil
}

// VerifyCode accepts either an unused backup code, which is consumed, or
// the TOTP code for the current time step, in one locked step. Callers that
// must claim something else before spending a backup code use CheckCode and
// RedeemBackupCode instead.
func (v *SecretVault) VerifyCode(ctx context.Context, accountID, code string) (bool, error) {
	ok := false
	_, err := v.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		if code == "" {
			return errUnchanged
		}
		if i := slices.Index(a.BackupCodes, code); i >= 0 {
			a.BackupCodes = slices.Delete(a.BackupCodes, i, i+1)
			ok = true
			return nil
		}
		ok = security.VerifyTOTP(code, a.MFASecret, v.now())
		return errUnchanged
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return false, err
	}
	return ok, nil
}

// CodeKind says which credential matched in CheckCode.
type CodeKind int

const (
	CodeNone CodeKind = iota
	CodeTOTP
	CodeBackup
)

// CheckCode reports which credential code matches without writing
// anything. A backup code stays usable until RedeemBackupCode removes it.
func (v *SecretVault) CheckCode(ctx context.Context, accountID, code string) (CodeKind, error) {
	if code == "" {
		return CodeNone, nil
	}
	a, err := v.accounts.GetByID(ctx, accountID)
	if err != nil {
		return CodeNone, err
	}
	if slices.Contains(a.BackupCodes, code) {
		return CodeBackup, nil
	}
	if security.VerifyTOTP(code, a.MFASecret, v.now()) {
		return CodeTOTP, nil
	}
	return CodeNone, nil
}

// RedeemBackupCode removes code from the unused set. It fails with
// domain.ErrInvalidTwoFactorCode when the code is already gone.
func (v *SecretVault) RedeemBackupCode(ctx context.Context, accountID, code string) error {
	_, err := v.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		i := slices.Index(a.BackupCodes, code)
		if i < 0 {
			return domain.ErrInvalidTwoFactorCode
		}
		a.BackupCodes = slices.Delete(a.BackupCodes, i, i+1)
		return nil
	})
	return err
}

// ConfirmEnrollment turns 2FA on once the user proves their authenticator
// produces the current code for the pending secret. Backup codes are not
// accepted here.
func (v *SecretVault) ConfirmEnrollment(ctx context.Context, accountID, code string) error {
	_, err := v.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		if a.MFAEnabled {
			return domain.ErrTwoFactorAlreadyConfigured
		}
		if a.MFASecret == "" {
			return domain.ErrTwoFactorNotConfigured
		}
		if !security.VerifyTOTP(code, a.MFASecret, v.now()) {
			return domain.ErrInvalidTwoFactorCode
		}
		a.MFAEnabled = true
		return nil
	})
	return err
}

// RegenerateBackupCodes replaces the backup code set of an enabled account
// after checking a current TOTP code.
func (v *SecretVault) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	var codes []string
	_, err := v.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		if !a.MFAEnabled {
			return domain.ErrTwoFactorNotConfigured
		}
		if !security.VerifyTOTP(code, a.MFASecret, v.now()) {
			return domain.ErrInvalidTwoFactorCode
		}
		fresh, err := security.GenerateBackupCodes()
		if err != nil {
			return err
		}
		a.BackupCodes = fresh
		codes = slices.Clone(fresh)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return codes, nil
}
