// Package history persists the outcome of every build attempt. The durable
// form is a single JSON file holding the full record list, rewritten
// atomically on each mutation and reloaded at process start.
package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bootcdev/diskctl/pkg/errors"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a record id is unknown to the store.
var ErrNotFound = fmt.Errorf("build record not found")

// Record is the persisted outcome of one build attempt. The store owns all
// mutations; callers hold records by id while a build is in flight.
type Record struct {
	ID        string    `json:"id"`
	Image     string    `json:"image"`
	Tag       string    `json:"tag"`
	Formats   []string  `json:"formats"`
	Arch      string    `json:"arch,omitempty"`
	Folder    string    `json:"folder"`
	EngineID  string    `json:"engineId,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewID generates a fresh build record identity.
func NewID() string {
	return uuid.New().String()
}

// Store keeps records in memory keyed by id and mirrors every mutation to
// the history file. A single mutex serializes mutations so near-simultaneous
// completions cannot lose each other's writes.
type Store struct {
	path string

	mu      sync.Mutex
	records map[string]*Record
	order   []string
}

// Open loads the store from path. A missing or corrupt history file is not
// fatal: the store starts empty and the first mutation rewrites it.
func Open(path string) (*Store, error) {
	s := &Store{
		path:    path,
		records: make(map[string]*Record),
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		slog.Info("history_store_empty", "path", path)
		return s, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read history file")
	}

	var loaded []*Record
	if err := json.Unmarshal(data, &loaded); err != nil {
		slog.Error("history_store_corrupt", "path", path, "error", err)
		return s, nil
	}

	for _, rec := range loaded {
		if rec.ID == "" {
			continue
		}
		if _, exists := s.records[rec.ID]; !exists {
			s.order = append(s.order, rec.ID)
		}
		s.records[rec.ID] = rec
	}

	slog.Info("history_store_loaded", "path", path, "records", len(s.records))
	return s, nil
}

// AddOrUpdate upserts a record by id and rewrites the history file. The
// stored copy fully replaces any previous fields for that id; insertion
// order is preserved across updates.
func (s *Store) AddOrUpdate(rec *Record) error {
	if rec.ID == "" {
		return fmt.Errorf("build record requires an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rec
	copied.UpdatedAt = time.Now().UTC()
	if _, exists := s.records[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
		if copied.CreatedAt.IsZero() {
			copied.CreatedAt = copied.UpdatedAt
		}
	}
	s.records[rec.ID] = &copied

	return s.persist()
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

// List returns a snapshot of all records in insertion order.
func (s *Store) List() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.records[id])
	}
	return out
}

// Remove deletes the record for id and rewrites the history file.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return s.persist()
}

// persist rewrites the whole history file atomically. Callers hold s.mu.
func (s *Store) persist() error {
	list := make([]*Record, 0, len(s.order))
	for _, id := range s.order {
		list = append(list, s.records[id])
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to serialize history")
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create history directory")
	}
	if err := renameio.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write history file")
	}
	return nil
}
