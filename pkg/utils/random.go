package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	// TokenAlphabet is URL safe and matches the TID grammar.
	TokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

	// CodeAlphabet drops 0/O, 1/I/L so codes survive manual retyping.
	CodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
)

// NewToken returns a cryptographically random correlation token of the given length.
func NewToken(length int) string {
	return randomString(length, TokenAlphabet)
}

// NewCode returns prefix followed by length random characters from alphabet.
// An empty alphabet falls back to CodeAlphabet.
func NewCode(length int, alphabet, prefix string) string {
	if alphabet == "" {
		alphabet = CodeAlphabet
	}
	return prefix + randomString(length, alphabet)
}

func randomString(length int, alphabet string) string {
	if length <= 0 {
		return ""
	}
	max := big.NewInt(int64(len(alphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// entropy source failure is not recoverable here
			panic("utils: crypto/rand unavailable: " + err.Error())
		}
		b[i] = alphabet[n.Int64()]
	}
	return string(b)
}
