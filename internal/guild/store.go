package guild

import (
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type entry struct {
	mu       sync.Mutex
	settings Settings
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// Store holds the settings of every guild the bot serves.
// Guilds are partitioned across shards so lookups for different guilds
// do not contend, and every value handed out is a copy.
type Store struct {
	names  Names
	shards [shardCount]*shard
}

// NewStore creates an empty store that discovers defaults using names
func NewStore(names Names) *Store {
	s := &Store{names: names.WithDefaults()}
	for i := range s.shards {
		s.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return s
}

// Names returns the structure names used for default discovery
func (s *Store) Names() Names {
	return s.names
}

func (s *Store) shardFor(guildID string) *shard {
	return s.shards[xxhash.Sum64String(guildID)%shardCount]
}

func (s *Store) lookup(guildID string) (*entry, bool) {
	sh := s.shardFor(guildID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[guildID]
	return e, ok
}

// entryFor returns the entry for guildID, creating it from snap if absent
func (s *Store) entryFor(guildID string, snap Snapshot) *entry {
	if e, ok := s.lookup(guildID); ok {
		return e
	}

	sh := s.shardFor(guildID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[guildID]; ok {
		return e
	}

	e := &entry{settings: SettingsFromSnapshot(snap, s.names)}
	sh.entries[guildID] = e
	slog.Info("Created guild settings", "guildID", guildID, "configured", e.settings.IsConfigured())
	return e
}

func (e *entry) read() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings.Clone()
}

// GetOrCreate returns the settings for guildID. Missing settings are
// built from snap; existing settings are returned as they are.
func (s *Store) GetOrCreate(guildID string, snap Snapshot) Settings {
	return s.entryFor(guildID, snap).read()
}

// Get returns the settings for guildID if they exist
func (s *Store) Get(guildID string) (Settings, bool) {
	e, ok := s.lookup(guildID)
	if !ok {
		return Settings{}, false
	}
	return e.read(), true
}

// Commit receives the new settings of a guild while the guild is still
// locked, so commits for one guild happen in the same order as the
// changes they record.
type Commit func(Settings) error

// Heal revalidates the settings for guildID against snap, creating them
// if needed. It returns the healed settings and whether they changed.
func (s *Store) Heal(guildID string, snap Snapshot) (Settings, bool) {
	settings, changed, _ := s.HealWith(guildID, snap, nil)
	return settings, changed
}

// HealWith heals like Heal and calls commit when something changed.
// A commit error does not undo the heal.
func (s *Store) HealWith(guildID string, snap Snapshot, commit Commit) (Settings, bool, error) {
	e := s.entryFor(guildID, snap)

	e.mu.Lock()
	defer e.mu.Unlock()
	changed := e.settings.Heal(snap, s.names)
	if !changed {
		return e.settings.Clone(), false, nil
	}

	slog.Debug("Healed guild settings", "guildID", guildID, "configured", e.settings.IsConfigured())
	settings := e.settings.Clone()
	if commit == nil {
		return settings, true, nil
	}
	return settings, true, commit(settings.Clone())
}

// IsConfigured reports whether guildID has all four references set.
// Unknown guilds are not configured.
func (s *Store) IsConfigured(guildID string) bool {
	settings, ok := s.Get(guildID)
	return ok && settings.IsConfigured()
}

// Update applies fn to the settings of guildID under the guild's lock
func (s *Store) Update(guildID string, snap Snapshot, fn func(*Settings)) Settings {
	settings, _ := s.UpdateWith(guildID, snap, fn, nil)
	return settings
}

// UpdateWith applies fn like Update, then calls commit before releasing
// the guild's lock. A commit error does not undo fn.
func (s *Store) UpdateWith(guildID string, snap Snapshot, fn func(*Settings), commit Commit) (Settings, error) {
	e := s.entryFor(guildID, snap)

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.settings)
	if e.settings.TournSettings == nil {
		e.settings.TournSettings = make(map[string]string)
	}

	settings := e.settings.Clone()
	if commit == nil {
		return settings, nil
	}
	return settings, commit(settings.Clone())
}

// Reset replaces the settings of guildID with fresh ones built from snap
func (s *Store) Reset(guildID string, snap Snapshot) Settings {
	settings, _ := s.ResetWith(guildID, snap, nil)
	return settings
}

// ResetWith resets like Reset and commits the fresh settings
func (s *Store) ResetWith(guildID string, snap Snapshot, commit Commit) (Settings, error) {
	return s.UpdateWith(guildID, snap, func(settings *Settings) {
		*settings = SettingsFromSnapshot(snap, s.names)
	}, commit)
}

// Load installs previously persisted settings for guildID
func (s *Store) Load(guildID string, settings Settings) {
	settings = settings.Clone()

	sh := s.shardFor(guildID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if e, ok := sh.entries[guildID]; ok {
		e.mu.Lock()
		e.settings = settings
		e.mu.Unlock()
		return
	}
	sh.entries[guildID] = &entry{settings: settings}
}

// All returns a copy of every guild's settings keyed by guild ID
func (s *Store) All() map[string]Settings {
	all := make(map[string]Settings)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for id, e := range sh.entries {
			all[id] = e.read()
		}
		sh.mu.RUnlock()
	}
	return all
}
