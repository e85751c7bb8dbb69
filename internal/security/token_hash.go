package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// HashToken returns the hex HMAC-SHA256 of token keyed by the server pepper.
func HashToken(token, pepper string) string {
	mac := hmac.New(sha256.New, []byte(pepper))
	_, _ = mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func TokenHashEqual(providedToken, storedHash, pepper string) bool {
	return HashesEqual(HashToken(providedToken, pepper), storedHash)
}

func HashesEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
