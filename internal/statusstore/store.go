package statusstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"moltfarm/internal/shared/logger"
	"moltfarm/internal/shared/types"
)

// Store is the durable per-bot state map, keyed by bot name. Mutation goes
// through the single scheduler loop only; the mutex exists so the dashboard
// can take read snapshots while the loop runs.
type Store struct {
	path     string
	mu       sync.RWMutex
	statuses map[string]*types.BotStatus
}

// Load reads the status file. A missing or malformed file yields an empty
// store; it must never crash the process.
func Load(path string) *Store {
	l := logger.WithComponent("StatusStore")
	s := &Store{
		path:     path,
		statuses: make(map[string]*types.BotStatus),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			l.Info().Str("path", path).Msg("Status file not found, starting with an empty store.")
		} else {
			l.Warn().Err(err).Str("path", path).Msg("Failed to read status file, starting with an empty store.")
		}
		return s
	}

	if err := json.Unmarshal(data, &s.statuses); err != nil {
		l.Warn().Err(err).Str("path", path).Msg("Malformed status file, starting with an empty store.")
		s.statuses = make(map[string]*types.BotStatus)
		return s
	}

	l.Info().Int("count", len(s.statuses)).Msg("Loaded bot statuses from file.")
	return s
}

// Get returns the status record for a bot, lazily creating one with default
// values on first reference. Records are never deleted.
func (s *Store) Get(name string) *types.BotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[name]; ok {
		return st
	}
	st := &types.BotStatus{}
	s.statuses[name] = st
	return st
}

// All returns a snapshot of the status map for read-only consumers such as
// the dashboard.
func (s *Store) All() map[string]types.BotStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]types.BotStatus, len(s.statuses))
	for k, v := range s.statuses {
		out[k] = *v
	}
	return out
}

// Save persists the whole map. It writes to a temp file in the same
// directory and renames it into place so a crash mid-write cannot destroy
// the previous state.
func (s *Store) Save() error {
	s.mu.RLock()
	data, err := json.MarshalIndent(s.statuses, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal statuses: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".status-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.path)
}
