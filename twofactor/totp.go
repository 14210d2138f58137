package twofactor

import (
	"fmt"
	"regexp"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// DefaultSkew is how many time-steps on either side of now a code is
// accepted. At the standard 30s period this tolerates ±2 minutes of clock
// drift between server and authenticator; widening it trades security
// margin for usability.
const DefaultSkew uint = 4

// DefaultDigits is the code length users type from their authenticator.
const DefaultDigits = 6

// DefaultPeriod is the TOTP step size in seconds.
const DefaultPeriod uint = 30

// Config tunes TOTP generation and verification.
type Config struct {
	Issuer string
	Period uint
	Digits int
	Skew   uint
}

// Manager generates provisioning secrets and verifies codes. Immutable
// after construction.
type Manager struct {
	config      Config
	codePattern *regexp.Regexp
}

// NewManager applies defaults and returns a [Manager].
func NewManager(cfg Config) *Manager {
	if cfg.Period == 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Digits == 0 {
		cfg.Digits = DefaultDigits
	}
	if cfg.Skew == 0 {
		cfg.Skew = DefaultSkew
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "authcore"
	}

	return &Manager{
		config:      cfg,
		codePattern: regexp.MustCompile(fmt.Sprintf(`^\d{%d}$`, cfg.Digits)),
	}
}

// GenerateSecret mints a fresh shared secret for the account and returns
// it base32-encoded together with the otpauth:// provisioning URI.
func (m *Manager) GenerateSecret(account string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.Issuer,
		AccountName: account,
		Period:      m.config.Period,
		Digits:      m.digits(),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

// VerifyCode checks a submitted code against the shared secret at time
// at, accepting any step within ±Skew of now. Codes that do not look like
// a 6-digit passcode are rejected without touching the secret.
func (m *Manager) VerifyCode(secret, code string, at time.Time) bool {
	if !m.codePattern.MatchString(code) {
		return false
	}

	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period:    m.config.Period,
		Skew:      m.config.Skew,
		Digits:    m.digits(),
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

func (m *Manager) digits() otp.Digits {
	if m.config.Digits == 8 {
		return otp.DigitsEight
	}
	return otp.DigitsSix
}
