// Package id generates and validates the sortable identifiers used
// throughout the event store.
package id

import (
	"crypto/rand"
	"regexp"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var ulidRe = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a 26-character Crockford base-32 ULID: a 48-bit millisecond
// timestamp followed by 80 bits of randomness. IDs generated within the
// same process and the same millisecond sort non-decreasing because the
// entropy source is monotonic.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Valid reports whether s has the shape of a ULID.
func Valid(s string) bool {
	return ulidRe.MatchString(s)
}

// Time extracts the millisecond timestamp component from a ULID string.
func Time(s string) (time.Time, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	ms := parsed.Time()
	return time.UnixMilli(int64(ms)), nil //nolint:gosec // ULID timestamps never exceed int64 range
}
