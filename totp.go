package authengine

import (
	"crypto/subtle"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

// totpManager wraps TOTP generation and verification. Verification
// tolerates cfg.Skew 30-second steps on either side of now and reports
// the timestep that matched, so callers can refuse a step that already
// authenticated once.
type totpManager struct {
	config TOTPConfig
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	if cfg.Issuer == "" {
		cfg.Issuer = "Staynest"
	}
	return &totpManager{config: cfg}
}

// GenerateSecret mints a fresh secret and its otpauth:// provisioning URI
// for the given account label. Nothing is persisted here.
func (m *totpManager) GenerateSecret(account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyCode checks a 6-digit code against the secret at the given time.
// The skew window is walked explicitly, rather than through
// totp.ValidateCustom, because the caller needs the matched timestep for
// replay rejection.
func (m *totpManager) VerifyCode(secret, code string, now time.Time) (matched bool, step int64, err error) {
	base := now.Unix() / totpPeriod
	for offset := -int64(m.config.Skew); offset <= int64(m.config.Skew); offset++ {
		step := base + offset
		expected, err := totp.GenerateCodeCustom(secret, time.Unix(step*totpPeriod, 0), totp.ValidateOpts{
			Period:    totpPeriod,
			Digits:    otp.DigitsSix,
			Algorithm: otp.AlgorithmSHA1,
		})
		if err != nil {
			return false, 0, err
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return true, step, nil
		}
	}
	return false, 0, nil
}
