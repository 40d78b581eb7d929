// Package session persists the matcher's document selections and workflow state
// so a restarted process comes back where the user left off.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/zombor/invoice-matcher/internal/matching"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Store implements matching.SessionStore on top of a DB for metadata and state and a
// Storage for document bytes
type Store struct {
	mu         sync.Mutex
	db         DB
	storage    Storage
	timeSource TimeSource
}

// NewStore creates a new Store
func NewStore(db DB, storage Storage) *Store {
	return NewStoreWithDeps(db, storage, &defaultTimeSource{})
}

// NewStoreWithDeps creates a new Store with a custom time source for testing
func NewStoreWithDeps(db DB, storage Storage, timeSrc TimeSource) *Store {
	return &Store{
		db:         db,
		storage:    storage,
		timeSource: timeSrc,
	}
}

// Save persists a snapshot. Document bytes are only written when a slot's content
// changed; files no longer referenced are removed afterwards.
func (s *Store) Save(snapshot matching.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.db.GetSession()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return fmt.Errorf("loading previous session: %w", err)
	}
	if prev == nil {
		prev = &Record{}
	}

	invoice, err := s.saveDocument("invoice", snapshot.Invoice, prev.Invoice)
	if err != nil {
		return err
	}
	po, err := s.saveDocument("po", snapshot.PO, prev.PO)
	if err != nil {
		return err
	}

	record := &Record{
		Invoice:   invoice,
		PO:        po,
		State:     snapshot.State,
		UpdatedAt: s.timeSource.Now(),
	}
	if err := s.db.SaveSession(record); err != nil {
		return fmt.Errorf("saving session: %w", err)
	}

	s.removeStale(prev.Invoice, invoice)
	s.removeStale(prev.PO, po)
	return nil
}

// Load returns the last saved snapshot, or an empty one when nothing was saved.
// A document whose file has gone missing is dropped from its slot, and files the
// session no longer references are removed.
func (s *Store) Load() (matching.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.db.GetSession()
	if errors.Is(err, ErrNoSession) {
		s.prune(&Record{})
		return matching.Snapshot{State: matching.State{Phase: matching.PhaseIdle}}, nil
	}
	if err != nil {
		return matching.Snapshot{}, fmt.Errorf("loading session: %w", err)
	}
	s.prune(record)

	return matching.Snapshot{
		Invoice: s.loadDocument(record.Invoice),
		PO:      s.loadDocument(record.PO),
		State:   record.State,
	}, nil
}

func (s *Store) saveDocument(slot string, doc *matching.Document, prev *DocumentRecord) (*DocumentRecord, error) {
	if doc == nil {
		return nil, nil
	}

	sum := sha256.Sum256(doc.Data)
	checksum := hex.EncodeToString(sum[:])
	rec := &DocumentRecord{
		Name:        doc.Name,
		ContentType: doc.ContentType,
		Size:        len(doc.Data),
		Checksum:    checksum,
		Path:        fmt.Sprintf("%s_%s_%s", slot, checksum[:12], sanitizeFilename(doc.Name)),
	}
	if prev != nil && prev.Path == rec.Path {
		return rec, nil
	}

	if err := s.storage.Put(rec.Path, doc.Data); err != nil {
		return nil, fmt.Errorf("saving %s document: %w", slot, err)
	}
	return rec, nil
}

func (s *Store) loadDocument(rec *DocumentRecord) *matching.Document {
	if rec == nil {
		return nil
	}
	data, err := s.storage.Read(rec.Path)
	if err != nil {
		slog.Warn("Dropping document with missing file", "name", rec.Name, "path", rec.Path, "error", err)
		return nil
	}
	return &matching.Document{
		Name:        rec.Name,
		ContentType: rec.ContentType,
		Data:        data,
	}
}

func (s *Store) removeStale(prev, current *DocumentRecord) {
	if prev == nil || (current != nil && current.Path == prev.Path) {
		return
	}
	if err := s.storage.Remove(prev.Path); err != nil {
		slog.Warn("Failed to delete replaced document", "path", prev.Path, "error", err)
	}
}

// prune removes files left behind by a save that never reached the database
func (s *Store) prune(record *Record) {
	names, err := s.storage.List()
	if err != nil {
		slog.Warn("Failed to list stored documents", "error", err)
		return
	}
	for _, name := range names {
		if (record.Invoice != nil && record.Invoice.Path == name) || (record.PO != nil && record.PO.Path == name) {
			continue
		}
		slog.Info("Removing orphaned document", "path", name)
		if err := s.storage.Remove(name); err != nil {
			slog.Warn("Failed to remove orphaned document", "path", name, "error", err)
		}
	}
}
