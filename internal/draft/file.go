package draft

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"

	"github.com/h1v3-io/ticketbot/pkg/protocol"
)

// DefaultFileName is the name of the JSON file inside the data directory.
const DefaultFileName = "pending_tickets.json"

// FileStore implements Store with a single JSON object on disk, keyed by
// draft key. The file is the source of truth: every operation reads it, and
// every write goes through an atomic rename and is read back and compared
// with the last written state held in memory.
type FileStore struct {
	path   string
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]*protocol.Draft
}

// NewFileStore opens (or prepares) the JSON file at path. The parent
// directory is created if needed.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("draft store: create dir: %w", err)
	}
	s := &FileStore{
		path:   path,
		logger: logger,
		now:    time.Now,
		cache:  make(map[string]*protocol.Draft),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	drafts, err := s.read()
	if err != nil {
		return nil, err
	}
	s.cache = drafts
	return s, nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Put(d *protocol.Draft) error {
	if d.Key == "" {
		return fmt.Errorf("draft store: put: empty key")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.read()
	if err != nil {
		return err
	}
	stamp(d, s.now())
	drafts[d.Key] = d.Clone()
	if err := s.commit(drafts); err != nil {
		return err
	}
	if err := s.verify(d.Key); err != nil {
		return err
	}
	s.logger.Debug("stored draft", "key", d.Key, "status", d.Status, "total", len(drafts))
	return nil
}

func (s *FileStore) Get(key string) (*protocol.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.read()
	if err != nil {
		return nil, err
	}
	d, ok := drafts[key]
	if !ok {
		s.logger.Debug("draft not found", "key", key, "available", len(drafts))
		return nil, fmt.Errorf("draft %q: %w", key, ErrNotFound)
	}
	return d, nil
}

func (s *FileStore) Update(key string, fn func(d *protocol.Draft) error) (*protocol.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.read()
	if err != nil {
		return nil, err
	}
	cur, ok := drafts[key]
	if !ok {
		return nil, fmt.Errorf("draft %q: %w", key, ErrNotFound)
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Key = key
	stamp(next, s.now())
	drafts[key] = next
	if err := s.commit(drafts); err != nil {
		return nil, err
	}
	if err := s.verify(key); err != nil {
		return nil, err
	}
	return next.Clone(), nil
}

func (s *FileStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.read()
	if err != nil {
		return err
	}
	if _, ok := drafts[key]; !ok {
		return nil
	}
	delete(drafts, key)
	if err := s.commit(drafts); err != nil {
		return err
	}
	if err := s.verify(key); err != nil {
		return err
	}
	s.logger.Debug("deleted draft", "key", key)
	return nil
}

func (s *FileStore) DeleteIf(key string, cond func(d *protocol.Draft) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	drafts, err := s.read()
	if err != nil {
		return false, err
	}
	cur, ok := drafts[key]
	if !ok || !cond(cur.Clone()) {
		return false, nil
	}
	delete(drafts, key)
	if err := s.commit(drafts); err != nil {
		return false, err
	}
	if err := s.verify(key); err != nil {
		return false, err
	}
	s.logger.Debug("deleted draft", "key", key)
	return true, nil
}

func (s *FileStore) List(filter Filter) ([]*protocol.Draft, error) {
	s.mu.Lock()
	drafts, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var out []*protocol.Draft
	for _, d := range drafts {
		if filter.Match(d) {
			out = append(out, d)
		}
	}
	sortNewestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Close is a no-op; the file is not held open between operations.
func (s *FileStore) Close() error { return nil }

// read loads the file. A missing file is an empty store. An unparseable file
// is moved aside and treated as empty so the bot keeps working.
func (s *FileStore) read() (map[string]*protocol.Draft, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]*protocol.Draft), nil
	}
	if err != nil {
		return nil, fmt.Errorf("draft store: read: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return make(map[string]*protocol.Draft), nil
	}

	drafts := make(map[string]*protocol.Draft)
	if err := json.Unmarshal(data, &drafts); err != nil {
		aside := fmt.Sprintf("%s.corrupt-%d", s.path, s.now().Unix())
		s.logger.Error("draft file unreadable, starting empty", "path", s.path, "moved_to", aside, "error", err)
		if rerr := os.Rename(s.path, aside); rerr != nil {
			s.logger.Error("failed to move corrupt draft file", "error", rerr)
		}
		return make(map[string]*protocol.Draft), nil
	}
	for k, d := range drafts {
		if d == nil {
			delete(drafts, k)
			continue
		}
		d.Key = k
	}
	return drafts, nil
}

func (s *FileStore) commit(drafts map[string]*protocol.Draft) error {
	data, err := json.MarshalIndent(drafts, "", "  ")
	if err != nil {
		return fmt.Errorf("draft store: marshal: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("draft store: write: %w", err)
	}
	s.cache = make(map[string]*protocol.Draft, len(drafts))
	for k, d := range drafts {
		s.cache[k] = d.Clone()
	}
	return nil
}

// verify re-reads the file and checks that the record for key matches what
// was just committed (or is absent if it was deleted).
func (s *FileStore) verify(key string) error {
	onDisk, err := s.read()
	if err != nil {
		return err
	}
	want, wantOK := s.cache[key]
	got, gotOK := onDisk[key]
	if wantOK != gotOK {
		return fmt.Errorf("%w: key %q present=%v on disk, want %v", ErrVerify, key, gotOK, wantOK)
	}
	if !wantOK {
		return nil
	}
	a, _ := json.Marshal(want)
	b, _ := json.Marshal(got)
	if !bytes.Equal(a, b) {
		return fmt.Errorf("%w: key %q differs on disk", ErrVerify, key)
	}
	return nil
}
