// Package frontend implements the front-end adapter (spec.md §4.4,
// "BacaMessenger"): posting a completed or failed submission back to the
// front end, and verifying the shared-secret hash an incoming submission
// must carry.
//
// Grounded on original_source/app/broker/messenger.py's BacaMessenger.
package frontend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// MakeHash computes the recomputable shared-secret hash spec.md §4.4
// leaves external: HMAC-SHA256 of the submit id, keyed by the broker's
// shared secret, hex-encoded. The front end and the broker each hold the
// secret out of band; the hash travels with the submission and is
// recomputed on receipt rather than transmitted as a bare password
// (spec.md §6, shared_secret_front_end / shared_secret_broker).
func MakeHash(secret, submitID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(submitID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyHash reports whether hash is the expected hash of submitID under
// secret, using a constant-time comparison to avoid leaking timing
// information about the secret.
func VerifyHash(secret, submitID, hash string) bool {
	expected := MakeHash(secret, submitID)
	return hmac.Equal([]byte(expected), []byte(hash))
}
