package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// VerifySubscription answers the platform handshake. It returns the challenge
// to echo when mode is "subscribe" and the token matches the configured one.
func VerifySubscription(mode, token, challenge, expected string) (string, error) {
	if mode != "subscribe" {
		return "", NewVerificationError("hub.mode must be subscribe")
	}
	if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return "", NewVerificationError("verify token mismatch")
	}
	return challenge, nil
}

// VerifySignature checks an X-Hub-Signature-256 header against the raw body.
// An empty secret disables the check.
func VerifySignature(secret string, body []byte, header string) error {
	if secret == "" {
		return nil
	}
	if !strings.HasPrefix(header, signaturePrefix) {
		return NewVerificationError("missing payload signature")
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return newError(KindVerification, "malformed payload signature", err)
	}
	if !hmac.Equal(got, Sign(secret, body)) {
		return NewVerificationError("payload signature mismatch")
	}
	return nil
}

// Sign computes the HMAC-SHA256 of body with secret.
func Sign(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
