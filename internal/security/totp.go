package security

import (
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// VerifyTOTP accepts codes from the current 30s step and one step either side.
func VerifyTOTP(secret, code string, at time.Time) bool {
	code = strings.TrimSpace(code)
	if secret == "" || code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, at, totp.ValidateOpts{
		Period: 30,
		Skew:   1,
		Digits: 6,
	})
	return err == nil && ok
}
