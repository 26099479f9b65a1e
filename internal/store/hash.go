package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// ContentHash is the hex SHA-256 of a file's text.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// BodyHash identifies a production body independently of layout: runs of
// whitespace count as a single space, so reindenting a rule keeps its hash.
func BodyHash(body string) string {
	return ContentHash(strings.Join(strings.Fields(body), " "))
}
