package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// Request signing over a canonical representation:
//
//	METHOD|PATH|TIMESTAMP|NONCE|hex(sha256(body))
//
// The method is uppercased; path and body are used exactly as received. Any
// reordering or normalization of the fields breaks interoperability with
// clients.

const canonicalDelimiter = "|"

// BodyHash returns the lowercase hex SHA-256 digest of the raw request body
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalString builds the order-sensitive signing input
func CanonicalString(method, path, timestamp, nonce, bodyHash string) string {
	return strings.Join(
		[]string{strings.ToUpper(method), path, timestamp, nonce, bodyHash},
		canonicalDelimiter,
	)
}

// Sign computes the hex-encoded HMAC-SHA256 signature of a request. The key
// must be the shared signing secret, never a one-way hash of it.
func Sign(secret, method, path, timestamp, nonce string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(CanonicalString(method, path, timestamp, nonce, BodyHash(body))))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature recomputes the expected signature and compares it to the
// provided one in constant time
func VerifySignature(providedSig, secret, method, path, timestamp, nonce string, body []byte) bool {
	expected := Sign(secret, method, path, timestamp, nonce, body)
	return subtle.ConstantTimeCompare([]byte(providedSig), []byte(expected)) == 1
}
