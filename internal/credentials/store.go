// Package credentials provides cookie-like durable storage for session tokens.
//
// Every entry carries its own expiry so the access token and refresh token
// can age out independently, the same way browser cookies do. Expired entries
// read as missing and are purged lazily.
package credentials

import (
	"crypto/sha256"
	"errors"
	"time"

	"github.com/mr-tron/base58"
)

// Well-known entry names.
const (
	AccessTokenKey  = "access_token"
	RefreshTokenKey = "refresh_token"
	CSRFTokenKey    = "csrftoken"

	// SessionStateKey holds the serialized session snapshot used to restore
	// state across process restarts. It never expires on its own.
	SessionStateKey = "eddits-auth"
)

// Sentinel errors
var (
	// ErrNotFound is returned when an entry doesn't exist or has expired.
	ErrNotFound = errors.New("entry not found")

	// ErrInvalidName is returned when an entry name is empty.
	ErrInvalidName = errors.New("invalid entry name")

	// ErrCorrupt is returned when the backing file can't be decoded.
	ErrCorrupt = errors.New("credential store corrupt")
)

// Entry is a single stored value with its expiry.
type Entry struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Expired reports whether the entry is past its expiry at now.
// Entries without an expiry never expire.
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store is durable key/value persistence with per-entry expiry.
type Store interface {
	// Get returns the value of a live entry, or ErrNotFound.
	Get(name string) (string, error)

	// Lookup returns the full live entry, or ErrNotFound.
	Lookup(name string) (*Entry, error)

	// Set stores value under name. A ttl <= 0 stores the entry without expiry.
	Set(name, value string, ttl time.Duration) error

	// Delete removes the named entries. Missing names are ignored.
	Delete(names ...string) error

	// Clear removes every entry.
	Clear() error

	Close() error
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func newEntry(name, value string, ttl time.Duration, now time.Time) Entry {
	e := Entry{
		Name:      name,
		Value:     value,
		UpdatedAt: now.UTC(),
	}
	if ttl > 0 {
		e.ExpiresAt = now.Add(ttl).UTC()
	}
	return e
}

// Fingerprint returns a short, non-reversible identifier for a secret value,
// suitable for log fields. Empty input yields an empty fingerprint.
func Fingerprint(value string) string {
	if value == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(value))
	return base58.Encode(hash[:8])
}
