// Package zipdb is a local demographic database keyed by postal code.
//
// Records live in a BoltDB file, one JSON-encoded domain.Demographic per
// canonical postal code. The store implements demographics.Lookup and can be
// populated from a census-style CSV export with ImportCSV.
package zipdb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/boltdb/bolt"

	"zipenrich/internal/demographics"
	apperrors "zipenrich/internal/errors"
	"zipenrich/pkg/contracts/domain"
)

var demographicsBucket = []byte("demographics")

// ErrNotFound is returned by Get and Lookup for unknown postal codes
var ErrNotFound = demographics.ErrNotFound

// Store is a BoltDB-backed demographic database
type Store struct {
	db       *bolt.DB
	readOnly bool
}

// Open opens or creates the database at path. A read-only store can be
// shared with other read-only processes.
func Open(path string, readOnly bool) (*Store, error) {
	// bolt creates the file before it notices it cannot write the header
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, apperrors.NewStorageError(fmt.Sprintf("opening zip database %q", path), err)
		}
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second, ReadOnly: readOnly})
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("opening zip database %q", path), err)
	}

	s := &Store{db: db, readOnly: readOnly}
	if !readOnly {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(demographicsBucket)
			return err
		})
		if err != nil {
			db.Close()
			return nil, apperrors.NewStorageError("creating demographics bucket", err)
		}
	}
	return s, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores d under its canonical postal code
func (s *Store) Put(d domain.Demographic) error {
	return s.PutAll([]domain.Demographic{d})
}

// PutAll stores many records in one transaction
func (s *Store) PutAll(ds []domain.Demographic) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(demographicsBucket)
		for _, d := range ds {
			zip, ok := domain.CanonicalZip(d.ZipCode)
			if !ok {
				return apperrors.NewValidationError(fmt.Sprintf("invalid zip code %q", d.ZipCode))
			}
			d.ZipCode = zip
			d.Found = true

			val, err := json.Marshal(d)
			if err != nil {
				return err
			}
			if err := b.Put([]byte(zip), val); err != nil {
				return fmt.Errorf("putting %s: %w", zip, err)
			}
		}
		return nil
	})
}

// Get returns the record for zip, or ErrNotFound
func (s *Store) Get(zip string) (domain.Demographic, error) {
	key, ok := domain.CanonicalZip(zip)
	if !ok {
		return domain.Demographic{}, ErrNotFound
	}

	var d domain.Demographic
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(demographicsBucket)
		if b == nil {
			return ErrNotFound
		}
		// the value is only valid inside the transaction; Unmarshal copies it
		val := b.Get([]byte(key))
		if val == nil {
			return ErrNotFound
		}
		return json.Unmarshal(val, &d)
	})
	if err != nil {
		return domain.Demographic{}, err
	}
	return d, nil
}

// Lookup implements demographics.Lookup
func (s *Store) Lookup(ctx context.Context, zip string) (domain.Demographic, error) {
	if err := ctx.Err(); err != nil {
		return domain.Demographic{}, err
	}
	return s.Get(zip)
}

// Count returns the number of stored postal codes
func (s *Store) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(demographicsBucket); b != nil {
			n = b.Stats().KeyN
		}
		return nil
	})
	return n, err
}

// ForEach calls fn for every record in postal-code order
func (s *Store) ForEach(fn func(domain.Demographic) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(demographicsBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var d domain.Demographic
			if err := json.Unmarshal(v, &d); err != nil {
				return err
			}
			return fn(d)
		})
	})
}
