package board

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tactiboard/engine/pkg/core"
)

var (
	ErrUnknownSequence   = errors.New("unknown sequence")
	ErrDuplicateSequence = errors.New("duplicate sequence id")
)

// AddSequence stores a sequence in the library and returns its id.
// An empty id is replaced by a fresh uuid.
func (s *Store) AddSequence(seq core.AnimationSequence) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq.ID == "" {
		seq.ID = uuid.NewString()
	}
	if s.indexOf(seq.ID) >= 0 {
		return "", fmt.Errorf("%w: %s", ErrDuplicateSequence, seq.ID)
	}
	s.library = append(s.library, seq)
	s.logger.Info("sequence added", "id", seq.ID, "steps", len(seq.Steps), "totalDuration", seq.TotalDuration)
	return seq.ID, nil
}

// ReplaceSequence removes oldID and adds candidate under a new id.
// Sequences are never patched in place.
func (s *Store) ReplaceSequence(oldID string, candidate core.AnimationSequence) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(oldID)
	if i < 0 {
		return "", fmt.Errorf("%w: %s", ErrUnknownSequence, oldID)
	}
	s.library = append(s.library[:i], s.library[i+1:]...)
	candidate.ID = uuid.NewString()
	s.library = append(s.library, candidate)
	s.logger.Info("sequence replaced", "old", oldID, "new", candidate.ID)
	return candidate.ID, nil
}

// DeleteSequence removes a sequence from the library.
func (s *Store) DeleteSequence(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrUnknownSequence, id)
	}
	s.library = append(s.library[:i], s.library[i+1:]...)
	return nil
}

// Sequence looks up a sequence by id.
func (s *Store) Sequence(id string) (core.AnimationSequence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return core.AnimationSequence{}, false
	}
	return s.library[i], true
}

// Sequences returns the library in insertion order.
func (s *Store) Sequences() []core.AnimationSequence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.AnimationSequence(nil), s.library...)
}

// LoadLibrary replaces the library, e.g. after reading it from storage.
func (s *Store) LoadLibrary(seqs []core.AnimationSequence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.library = append([]core.AnimationSequence(nil), seqs...)
}

func (s *Store) indexOf(id string) int {
	for i, seq := range s.library {
		if seq.ID == id {
			return i
		}
	}
	return -1
}
