// Package cache reuses previously generated answers for conversations that
// took the same path. Answers are keyed per party by a fingerprint of the
// rendered conversation history, so two users asking the same proposed
// question in the same order hit the same entry.
package cache

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes a rendered conversation history into a stable cache key.
func Fingerprint(history string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(history))
}
