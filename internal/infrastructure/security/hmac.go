package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// SignToken computes the hex HMAC-SHA256 signature of a token. The same
// signature scheme authenticates both issue requests from the inviting
// platform and resolve callbacks from a remote decision engine.
func SignToken(secret, token string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a presented signature in constant time.
func VerifySignature(secret, token, signature string) bool {
	expected := SignToken(secret, token)
	return hmac.Equal([]byte(expected), []byte(signature))
}
