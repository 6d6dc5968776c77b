package config

import (
	"bytes"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Service owns the published configuration snapshot. Reads are lock-free and
// safe from any goroutine; the snapshot is immutable once published. Only
// the reload/save path swaps it, and reloads are serialized so a reload in
// progress completes or fails atomically before another is accepted.
type Service struct {
	store *Store

	reloadMu sync.Mutex
	snap     atomic.Pointer[Snapshot]
}

// NewService loads the stored document or, on first run, writes the
// defaults, then publishes the initial snapshot.
func NewService(store *Store) (*Service, error) {
	s := &Service{store: store}
	doc, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !ok {
		snap := Default()
		out, err := marshalDoc(snap)
		if err != nil {
			return nil, err
		}
		if err := store.Save(out); err != nil {
			return nil, errors.Wrap(err, "write initial config")
		}
		s.snap.Store(&snap)
		return s, nil
	}
	snap, cfgErr := parseDoc(doc)
	if cfgErr != nil {
		return nil, cfgErr
	}
	s.snap.Store(&snap)
	return s, nil
}

// Snapshot returns the current published snapshot. Callers must treat the
// value (including its slices) as read-only.
func (s *Service) Snapshot() Snapshot {
	return *s.snap.Load()
}

// Reload re-reads the stored document and swaps the published snapshot. On
// any parse or validation failure the previous snapshot stays published and
// a *ConfigError is returned.
func (s *Service) Reload() (Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	doc, ok, err := s.store.Load()
	if err != nil {
		return s.Snapshot(), err
	}
	if !ok {
		return s.Snapshot(), &ConfigError{Reason: "no stored document"}
	}
	snap, cfgErr := parseDoc(doc)
	if cfgErr != nil {
		return s.Snapshot(), cfgErr
	}
	s.snap.Store(&snap)
	log.Info().Msg("configuration reloaded")
	return snap, nil
}

// Apply validates a full document (the settings-save path), persists it and
// publishes it. Invalid input leaves both the store and the published
// snapshot untouched.
func (s *Service) Apply(doc []byte) (Snapshot, error) {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, cfgErr := parseDoc(doc)
	if cfgErr != nil {
		return s.Snapshot(), cfgErr
	}
	out, err := marshalDoc(snap)
	if err != nil {
		return s.Snapshot(), err
	}
	if err := s.store.Save(out); err != nil {
		return s.Snapshot(), err
	}
	s.snap.Store(&snap)
	log.Info().Msg("configuration saved")
	return snap, nil
}

// parseDoc decodes a document on top of the declared defaults, so missing
// options fall back instead of zeroing out, then validates the result.
func parseDoc(doc []byte) (Snapshot, *ConfigError) {
	snap := Default()
	dec := json.NewDecoder(bytes.NewReader(doc))
	if err := dec.Decode(&snap); err != nil {
		return Snapshot{}, wrapParseError(err)
	}
	if err := snap.Validate(); err != nil {
		var cfgErr *ConfigError
		if errors.As(err, &cfgErr) {
			return Snapshot{}, cfgErr
		}
		return Snapshot{}, &ConfigError{Reason: err.Error(), cause: err}
	}
	return snap, nil
}

func marshalDoc(snap Snapshot) ([]byte, error) {
	out, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal config")
	}
	return out, nil
}
