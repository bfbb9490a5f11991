package shortid

import (
	"crypto/rand"
)

const (
	alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	// MaxLength bounds both generated and custom codes.
	MaxLength = 64
)

// Generate returns a random code of length characters drawn uniformly from
// [0-9a-zA-Z].
func Generate(length int) string {
	out := make([]byte, 0, length)
	buf := make([]byte, length+length/2)
	// 248 is the largest multiple of 62 that fits a byte; higher values are
	// rejected so every character is equally likely.
	const limit = 256 - 256%len(alphabet)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			panic("shortid: crypto/rand: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out)
}

// Valid reports whether code could be a short code: 1 to MaxLength
// characters from [0-9a-zA-Z_-].
func Valid(code string) bool {
	if code == "" || len(code) > MaxLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		c := code[i]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}
