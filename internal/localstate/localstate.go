// Package localstate is a typed store for small device-scoped flags: the
// resume profile id, whether the recording tutorial has been completed,
// the last active community. One JSON file on disk, explicit accessors,
// and change notification for anything that wants to react to a flag flip.
package localstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Flags is the full device state. Adding a field here is the only step to
// introduce a new flag — persistence and notification come for free.
type Flags struct {
	ResumeProfileID   string `json:"resumeProfileId,omitempty"`
	TutorialCompleted bool   `json:"tutorialCompleted,omitempty"`
	LastCommunityID   string `json:"lastCommunityId,omitempty"`
}

// Store persists Flags to a JSON file and notifies subscribers on change.
type Store struct {
	path string

	mu    sync.Mutex
	flags Flags
	subs  []chan Flags
}

// Open loads the store from path, creating an empty one if the file does
// not exist. A corrupt file is treated as empty — device flags are
// recoverable state, never worth refusing to start over.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("localstate: reading %s: %w", path, err)
	}

	if err := json.Unmarshal(data, &s.flags); err != nil {
		s.flags = Flags{}
	}
	return s, nil
}

// Get returns the current flags.
func (s *Store) Get() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// Set applies fn to the flags, persists, and notifies subscribers. The
// write goes through a temp file and rename so a crash mid-write never
// leaves a truncated state file.
func (s *Store) Set(fn func(*Flags)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(&s.flags)

	data, err := json.MarshalIndent(s.flags, "", "  ")
	if err != nil {
		return fmt.Errorf("localstate: marshaling flags: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("localstate: creating state dir: %w", err)
	}
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("localstate: writing flags: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("localstate: replacing flags file: %w", err)
	}

	for _, ch := range s.subs {
		select {
		case ch <- s.flags:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel receiving the full flag set after every
// successful Set. The returned cancel func detaches and closes it.
func (s *Store) Subscribe() (<-chan Flags, func()) {
	ch := make(chan Flags, 8)

	s.mu.Lock()
	s.subs = append(s.subs, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub == ch {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}
