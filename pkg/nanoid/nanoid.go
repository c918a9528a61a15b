// Package nanoid generates short, URL-safe, opaque identifiers for control
// database records. No verified nanoid dependency is available, so this is
// a small, self-contained implementation over crypto/rand instead.
package nanoid

import (
	"crypto/rand"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

const defaultSize = 12

// New returns a random identifier of the default size.
func New() string {
	return Sized(defaultSize)
}

// Sized returns a random identifier of the given length.
func Sized(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	id := make([]byte, size)
	for i, b := range buf {
		id[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(id)
}
