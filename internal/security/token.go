package security

import "crypto/rand"

// NewRandomToken returns a random 26 character secret (base32, 130 bits),
// valid as a Telegram webhook secret token and as an API bearer token.
func NewRandomToken() string {
	return rand.Text()
}
