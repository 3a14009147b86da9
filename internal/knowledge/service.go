package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lookupbot/internal/model"
)

var (
	ErrInputFormat = errors.New("input_format")
	ErrPersistence = errors.New("persistence")
)

// Store is the persistence backend for the knowledge base. Save always
// receives the complete entry list and replaces whatever was stored before.
type Store interface {
	Load(ctx context.Context) ([]model.Entry, error)
	Save(ctx context.Context, entries []model.Entry) error
}

// Service owns the in-memory entry list. Mutations hold the write lock across
// the change and the following save; lookups share the read lock.
type Service struct {
	store Store

	mu      sync.RWMutex
	entries []model.Entry
	saveErr error

	Changes chan model.Change
}

func New(store Store) *Service {
	return &Service{
		store:   store,
		entries: []model.Entry{},
		Changes: make(chan model.Change, 64),
	}
}

// Load replaces the in-memory list with the backend content. A backend
// failure leaves the service with an empty list and is returned wrapped in
// ErrPersistence so the caller can log it and keep going.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.store.Load(ctx)
	if err != nil {
		s.entries = []model.Entry{}
		return fmt.Errorf("%w: load entries: %w", ErrPersistence, err)
	}
	s.entries = normalizeLoaded(entries)
	return nil
}

// Reload is Load for a running service: on failure the current list is kept.
func (s *Service) Reload(ctx context.Context) (int, error) {
	s.mu.Lock()
	entries, err := s.store.Load(ctx)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("%w: reload entries: %w", ErrPersistence, err)
	}
	s.entries = normalizeLoaded(entries)
	n := len(s.entries)
	s.mu.Unlock()
	s.emit(model.ChangeReloaded, nil, n, "")
	return n, nil
}

func normalizeLoaded(entries []model.Entry) []model.Entry {
	out := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, model.Entry{Keys: NormalizeKeys(e.Keys), Text: e.Text})
	}
	return out
}

// Entries returns a copy of the current list in store order.
func (s *Service) Entries() []model.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e.Clone())
	}
	return out
}

func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// PersistErr reports the failure of the most recent save, or nil once a save
// succeeds again.
func (s *Service) PersistErr() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveErr
}

// Match returns the texts of all entries whose keys share a word with message.
func (s *Service) Match(message string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return MatchEntries(s.entries, message)
}

// Add appends a new entry keyed by the comma-separated rawKeys.
func (s *Service) Add(ctx context.Context, rawKeys, text string) (model.Entry, error) {
	keys := NormalizeKeyList(rawKeys)
	if len(keys) == 0 {
		return model.Entry{}, fmt.Errorf("%w: at least one key is required", ErrInputFormat)
	}
	for _, k := range keys {
		if strings.ContainsAny(k, "\r\n") || strings.Contains(k, "||") {
			return model.Entry{}, fmt.Errorf("%w: key %q must not contain a line break or \"||\"", ErrInputFormat, k)
		}
	}
	if strings.TrimSpace(text) == "" {
		return model.Entry{}, fmt.Errorf("%w: text is required", ErrInputFormat)
	}
	entry := model.Entry{Keys: keys, Text: text}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.persistLocked(ctx)
	s.mu.Unlock()

	s.emit(model.ChangeAdded, keys, 1, text)
	return entry.Clone(), nil
}

// AddCommand parses "<keys> <text>" and adds the entry.
func (s *Service) AddCommand(ctx context.Context, raw string) (model.Entry, error) {
	keys, body, err := SplitCommand(raw)
	if err != nil {
		return model.Entry{}, err
	}
	return s.Add(ctx, keys, body)
}

// Delete removes every entry that carries any of the given keys. Each
// candidate key is reported either as deleted or as not found.
func (s *Service) Delete(ctx context.Context, rawKeys string) (model.DeleteResult, error) {
	candidates := NormalizeKeyList(rawKeys)
	if len(candidates) == 0 {
		return model.DeleteResult{}, fmt.Errorf("%w: at least one key is required", ErrInputFormat)
	}
	want := keySet(candidates)
	hit := map[string]struct{}{}

	s.mu.Lock()
	kept := make([]model.Entry, 0, len(s.entries))
	removed := 0
	for _, e := range s.entries {
		own := keySet(e.Keys)
		if !intersects(own, want) {
			kept = append(kept, e)
			continue
		}
		removed++
		for k := range own {
			if _, ok := want[k]; ok {
				hit[k] = struct{}{}
			}
		}
	}
	if removed > 0 {
		s.entries = kept
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	res := model.DeleteResult{Deleted: []string{}, NotFound: []string{}}
	seen := map[string]struct{}{}
	for _, k := range candidates {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if _, ok := hit[k]; ok {
			res.Deleted = append(res.Deleted, k)
		} else {
			res.NotFound = append(res.NotFound, k)
		}
	}
	if removed > 0 {
		s.emit(model.ChangeDeleted, res.Deleted, removed, "")
	}
	return res, nil
}

// Edit replaces the text of the first entry, in store order, that carries any
// of the given keys. Later entries sharing a key are left untouched.
func (s *Service) Edit(ctx context.Context, rawKeys, newText string) (bool, error) {
	keys := NormalizeKeyList(rawKeys)
	if len(keys) == 0 {
		return false, fmt.Errorf("%w: at least one key is required", ErrInputFormat)
	}
	if strings.TrimSpace(newText) == "" {
		return false, fmt.Errorf("%w: text is required", ErrInputFormat)
	}
	want := keySet(keys)

	s.mu.Lock()
	found := false
	for i := range s.entries {
		if intersects(keySet(s.entries[i].Keys), want) {
			s.entries[i].Text = newText
			found = true
			break
		}
	}
	if found {
		s.persistLocked(ctx)
	}
	s.mu.Unlock()

	if found {
		s.emit(model.ChangeEdited, keys, 1, newText)
	}
	return found, nil
}

// EditCommand parses "<keys> <text>" and edits the matching entry.
func (s *Service) EditCommand(ctx context.Context, raw string) ([]string, bool, error) {
	keys, body, err := SplitCommand(raw)
	if err != nil {
		return nil, false, err
	}
	found, err := s.Edit(ctx, keys, body)
	return NormalizeKeyList(keys), found, err
}

// persistLocked writes the whole list to the backend. Failures are logged and
// remembered; the in-memory list stays authoritative.
func (s *Service) persistLocked(ctx context.Context) {
	snapshot := make([]model.Entry, 0, len(s.entries))
	for _, e := range s.entries {
		snapshot = append(snapshot, e.Clone())
	}
	if err := s.store.Save(ctx, snapshot); err != nil {
		log.Printf("save entries failed, serving from memory: %v", err)
		s.saveErr = fmt.Errorf("%w: save entries: %w", ErrPersistence, err)
		return
	}
	s.saveErr = nil
}

func (s *Service) emit(kind model.ChangeKind, keys []string, count int, text string) {
	change := model.Change{
		ID:        uuid.NewString(),
		Kind:      kind,
		Keys:      keys,
		Count:     count,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	select {
	case s.Changes <- change:
	default:
	}
}
