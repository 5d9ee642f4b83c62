// Package channel derives the shared event-channel name for a pair of users.
package channel

import (
	"crypto/sha256"
	"encoding/hex"
)

// separator joins the two usernames before hashing. A control byte keeps
// ("ab","c") and ("a","bc") from colliding; usernames never contain it.
const separator = "\x01"

// Derive returns the channel name shared by users a and b.
//
// The pair is sorted before hashing, so Derive(a, b) == Derive(b, a): both
// participants subscribe to the same channel without a server-assigned room
// id. The result is the lowercase hex SHA-256 of the canonical pair, always
// 64 characters.
func Derive(a, b string) string {
	if b < a {
		a, b = b, a
	}
	sum := sha256.Sum256([]byte(a + separator + b))
	return hex.EncodeToString(sum[:])
}
