// Package shared provides utility functions for random identifiers and
// secure memory wiping.
package shared

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

// MakeRandHexString generates a random hexadecimal string of the given size.
// The size is the number of random bytes, so the string is twice as long.
//
// It returns an error if the random number generator fails.
func MakeRandHexString(size int) (string, error) {

	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// RandBase36 returns n random characters from [0-9a-z].
func RandBase36(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(base36)))
	for i := range out {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = base36[v.Int64()]
	}
	return string(out), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with zeros.
// Used for passwords read from the terminal.
//
// If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	if b == nil {
		return
	}
	for i := range b {
		b[i] = 0
	}
}
