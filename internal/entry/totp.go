package entry

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP derives the time-based one-time code for t from the OTP field.
func (e *Entry) TOTP(t time.Time) (string, error) {
	if e.OTP.IsEmpty() {
		return "", fmt.Errorf("totp: %w", ErrFieldNotFound)
	}
	opts, secret, err := totpParams(e.OTP.Text())
	if err != nil {
		return "", fmt.Errorf("totp: %w", err)
	}
	code, err := totp.GenerateCodeCustom(secret, t, opts)
	if err != nil {
		return "", fmt.Errorf("totp: %w", err)
	}
	return code, nil
}

func totpParams(raw string) (totp.ValidateOpts, string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "otpauth://") {
		key, err := otp.NewKeyFromURL(raw)
		if err != nil {
			return totp.ValidateOpts{}, "", err
		}
		if key.Type() != "totp" {
			return totp.ValidateOpts{}, "", fmt.Errorf("unsupported otp type %q", key.Type())
		}
		return totp.ValidateOpts{
			Period:    uint(key.Period()),
			Digits:    key.Digits(),
			Algorithm: key.Algorithm(),
		}, key.Secret(), nil
	}

	return totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}, strings.ReplaceAll(raw, " ", ""), nil
}
