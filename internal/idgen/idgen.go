// Package idgen mints the opaque secondary tokens: playlist share tokens
// and login-link tokens. Primary entity ids are xids generated in the
// repositories; these are ULIDs from crypto/rand entropy because they are
// capability tokens — guessing one must be infeasible.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a fresh 26-character ULID.
func NewULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}
