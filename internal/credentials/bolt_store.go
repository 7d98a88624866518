package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

var entriesBucket = []byte("entries")

// BoltStore keeps entries in a BBolt database.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (or creates) a BBolt database at path.
func NewBoltStore(path string, opts ...Option) (*BoltStore, error) {
	// A short lock timeout stops a second CLI invocation hanging forever on
	// the file lock.
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	o := applyOptions(opts)

	log.Debug().Str("path", path).Msg("bolt credential store initialized")

	return &BoltStore{db: db, now: o.now}, nil
}

// Get implements Store.
func (s *BoltStore) Get(name string) (string, error) {
	e, err := s.Lookup(name)
	if err != nil {
		return "", err
	}
	return e.Value, nil
}

// Lookup implements Store.
func (s *BoltStore) Lookup(name string) (*Entry, error) {
	var (
		e       Entry
		expired bool
	)

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(entriesBucket).Get([]byte(name))
		if data == nil {
			return ErrNotFound
		}
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		expired = e.Expired(s.now())
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expired {
		if err := s.Delete(name); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("failed to purge expired entry")
		}
		return nil, ErrNotFound
	}

	return &e, nil
}

// Set implements Store.
func (s *BoltStore) Set(name, value string, ttl time.Duration) error {
	if name == "" {
		return ErrInvalidName
	}

	data, err := json.Marshal(newEntry(name, value, ttl, s.now()))
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(entriesBucket).Put([]byte(name), data)
	})
}

// Delete implements Store.
func (s *BoltStore) Delete(names ...string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		for _, name := range names {
			if name == "" {
				continue
			}
			if err := b.Delete([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Clear implements Store.
func (s *BoltStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(entriesBucket); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(entriesBucket)
		return err
	})
}

// Close closes the underlying BBolt database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
