package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/invoice-matcher/internal/matching"
)

const (
	bucketName = "session"
	currentKey = "current"
)

// ErrNoSession is returned when nothing has been saved yet
var ErrNoSession = errors.New("no saved session")

// DocumentRecord describes a stored document. The bytes live in Storage under Path.
type DocumentRecord struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Path        string `json:"path"`
	Size        int    `json:"size"`
	Checksum    string `json:"checksum"`
}

// Record is the persisted form of a matching.Snapshot
type Record struct {
	Invoice   *DocumentRecord `json:"invoice,omitempty"`
	PO        *DocumentRecord `json:"po,omitempty"`
	State     matching.State  `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// DB defines the interface for session persistence
type DB interface {
	// SaveSession replaces the current session record
	SaveSession(record *Record) error

	// GetSession returns the current session record or ErrNoSession
	GetSession() (*Record, error)

	// Close closes the database connection
	Close() error
}

// BoltDB implements the DB interface using BoltDB
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// SaveSession saves the session record
func (b *BoltDB) SaveSession(record *Record) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling session: %w", err)
		}
		return bucket.Put([]byte(currentKey), data)
	})
}

// GetSession retrieves the session record
func (b *BoltDB) GetSession() (*Record, error) {
	var record *Record
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		data := bucket.Get([]byte(currentKey))
		if data == nil {
			return ErrNoSession
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("unmarshaling session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
