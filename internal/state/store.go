// Package state owns the mutable per-instance state document.
//
// The document lives in memory and mirrors itself to a single JSON file:
// every effective mutation triggers a whole-document save through the
// crash-safe writer in the persistence package. Saves after construction
// never fail the caller; a failed write is logged and counted, the
// in-memory document stays authoritative and the next effective mutation
// writes the newest state again.
package state

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wardenhq/core/internal/csync"
	"github.com/wardenhq/core/internal/domain/entities"
	"github.com/wardenhq/core/internal/infrastructure/persistence"
)

// Logger is the minimal diagnostic sink the store needs.
type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
}

// FileWriter persists a marshaled document. *persistence.Writer implements
// it; tests inject their own to observe or fail saves.
type FileWriter interface {
	Write(data []byte) error
}

// document is the serialized shape of the state file.
//
// Set pointers are assigned once during Open and never replaced afterwards;
// the sets themselves are internally synchronized.
type document struct {
	InstanceID                 string                 `json:"instance_id"`
	LoginKey                   string                 `json:"login_key,omitempty"`
	Authenticator              *entities.Authenticator `json:"authenticator,omitempty"`
	IdlingPriorityAppIDs       *csync.Set[uint32]     `json:"idling_priority_app_ids"`
	IdlingBlacklistedAppIDs    *csync.Set[uint32]     `json:"idling_blacklisted_app_ids"`
	BlacklistedTradePartnerIDs *csync.Set[uint64]     `json:"blacklisted_trade_partner_ids"`
}

func newDocument() document {
	return document{
		InstanceID:                 uuid.NewString(),
		IdlingPriorityAppIDs:       csync.NewSet[uint32](),
		IdlingBlacklistedAppIDs:    csync.NewSet[uint32](),
		BlacklistedTradePartnerIDs: csync.NewSet[uint64](),
	}
}

// Store is the state document plus its save-on-change engine.
// All methods are safe for concurrent use. There is no Close: the store
// lives until process exit.
type Store struct {
	path     string
	log      Logger
	writer   FileWriter
	fileMode os.FileMode

	mu  sync.RWMutex // guards scalar fields and the authenticator pointer
	doc document

	saveMu sync.Mutex // serializes marshal and write

	saves        atomic.Int64
	saveFailures atomic.Int64
	lastSave     atomic.Int64 // unix nanos of the last successful save
}

// Option configures a Store during Open.
type Option func(*Store)

// WithWriter replaces the default atomic file writer.
func WithWriter(w FileWriter) Option {
	return func(s *Store) {
		s.writer = w
	}
}

// WithFileMode overrides the mode of the state file.
func WithFileMode(mode os.FileMode) Option {
	return func(s *Store) {
		s.fileMode = mode
	}
}

// Open loads the state document at path, or creates a fresh one when the
// file does not exist yet.
//
// A fresh document is persisted before Open returns; if that first write
// fails, Open fails. This is the only save whose failure is surfaced as an
// error. An existing file that cannot be read or parsed also fails: state
// corruption must never be silently discarded.
func Open(path string, log Logger, opts ...Option) (*Store, error) {
	s := &Store{
		path:     path,
		log:      log,
		fileMode: persistence.DefaultFileMode,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.writer == nil {
		s.writer = persistence.NewWriter(path, s.fileMode)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
		}
		if s.normalize() {
			s.trySave()
		}
		log.Infow("Loaded state document",
			"path", path,
			"instance_id", s.doc.InstanceID,
		)

	case os.IsNotExist(err):
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
		s.doc = newDocument()
		if err := s.persist(); err != nil {
			return nil, fmt.Errorf("failed to create state file %s: %w", path, err)
		}
		log.Infow("Created state document",
			"path", path,
			"instance_id", s.doc.InstanceID,
		)

	default:
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	return s, nil
}

// normalize repairs gaps left by older or hand-edited files and reports
// whether anything was filled in.
func (s *Store) normalize() bool {
	changed := false
	if s.doc.InstanceID == "" {
		s.doc.InstanceID = uuid.NewString()
		changed = true
	}
	if s.doc.IdlingPriorityAppIDs == nil {
		s.doc.IdlingPriorityAppIDs = csync.NewSet[uint32]()
		changed = true
	}
	if s.doc.IdlingBlacklistedAppIDs == nil {
		s.doc.IdlingBlacklistedAppIDs = csync.NewSet[uint32]()
		changed = true
	}
	if s.doc.BlacklistedTradePartnerIDs == nil {
		s.doc.BlacklistedTradePartnerIDs = csync.NewSet[uint64]()
		changed = true
	}
	return changed
}

// persist marshals the current document and replaces the file. The save
// mutex serializes concurrent saves; the payload is captured at write time,
// so a save may carry a slightly newer document than the mutation that
// scheduled it. The final save always lands the final state.
func (s *Store) persist() error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	start := time.Now()
	if err := s.writer.Write(data); err != nil {
		s.saveFailures.Add(1)
		stateSaveFailures.Inc()
		return err
	}

	s.saves.Add(1)
	s.lastSave.Store(time.Now().UnixNano())
	stateSaves.Inc()
	stateSaveDuration.Observe(time.Since(start).Seconds())
	return nil
}

// trySave persists and swallows the failure. In-memory state stays
// authoritative; the next effective mutation retries.
func (s *Store) trySave() {
	if err := s.persist(); err != nil {
		s.log.Errorw("Failed to save state document",
			"path", s.path,
			"error", err.Error(),
		)
	}
}

// Path returns the state file location.
func (s *Store) Path() string {
	return s.path
}

// InstanceID returns the identifier stamped when the document was first
// created.
func (s *Store) InstanceID() string {
	return s.doc.InstanceID
}

// LoginKey returns the stored session-resumption credential, empty when
// none is held.
func (s *Store) LoginKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.LoginKey
}

// HasLoginKey reports whether a session-resumption credential is held.
func (s *Store) HasLoginKey() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.LoginKey != ""
}

// SetLoginKey stores key and reports whether the value changed. Writing
// the current value is a no-op that touches nothing on disk.
func (s *Store) SetLoginKey(key string) bool {
	s.mu.Lock()
	if s.doc.LoginKey == key {
		s.mu.Unlock()
		return false
	}
	s.doc.LoginKey = key
	s.mu.Unlock()

	s.trySave()
	return true
}

// Authenticator returns a copy of the attached authenticator and whether
// one is attached. The copy never aliases document state.
func (s *Store) Authenticator() (entities.Authenticator, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.Authenticator == nil {
		return entities.Authenticator{}, false
	}
	return *s.doc.Authenticator, true
}

// HasAuthenticator reports whether an authenticator is attached.
func (s *Store) HasAuthenticator() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Authenticator != nil
}

// SetAuthenticator attaches a copy of a and reports whether the document
// changed.
func (s *Store) SetAuthenticator(a entities.Authenticator) bool {
	s.mu.Lock()
	if s.doc.Authenticator != nil && *s.doc.Authenticator == a {
		s.mu.Unlock()
		return false
	}
	s.doc.Authenticator = &a
	s.mu.Unlock()

	s.trySave()
	return true
}

// ClearAuthenticator detaches the authenticator and reports whether one
// was attached.
func (s *Store) ClearAuthenticator() bool {
	s.mu.Lock()
	if s.doc.Authenticator == nil {
		s.mu.Unlock()
		return false
	}
	s.doc.Authenticator = nil
	s.mu.Unlock()

	s.trySave()
	return true
}

// CorrectAuthenticatorDeviceID forwards to the authenticator's own
// change-reporting mutation and saves iff it changed anything.
func (s *Store) CorrectAuthenticatorDeviceID(deviceID string) bool {
	s.mu.Lock()
	if s.doc.Authenticator == nil {
		s.mu.Unlock()
		s.log.Warnw("No authenticator attached, device ID not corrected", "path", s.path)
		return false
	}
	changed := s.doc.Authenticator.CorrectDeviceID(deviceID)
	s.mu.Unlock()

	if changed {
		s.trySave()
	}
	return changed
}

// mutateSet applies a bulk membership change and saves iff membership
// actually changed. An empty id list is a caller contract violation: it is
// reported to the sink and changes nothing.
func mutateSet[T cmp.Ordered](s *Store, set *csync.Set[T], name string, add bool, ids []T) bool {
	if len(ids) == 0 {
		s.log.Warnw("No IDs provided", "set", name)
		return false
	}

	var changed bool
	if add {
		changed = set.AddRange(ids...)
	} else {
		changed = set.RemoveRange(ids...)
	}
	if changed {
		s.trySave()
	}
	return changed
}

// AddIdlingPriorityAppIDs marks apps as priority targets.
func (s *Store) AddIdlingPriorityAppIDs(appIDs ...uint32) bool {
	return mutateSet(s, s.doc.IdlingPriorityAppIDs, "idling_priority_app_ids", true, appIDs)
}

// RemoveIdlingPriorityAppIDs unmarks priority targets.
func (s *Store) RemoveIdlingPriorityAppIDs(appIDs ...uint32) bool {
	return mutateSet(s, s.doc.IdlingPriorityAppIDs, "idling_priority_app_ids", false, appIDs)
}

// AddIdlingBlacklistedAppIDs excludes apps from idling.
func (s *Store) AddIdlingBlacklistedAppIDs(appIDs ...uint32) bool {
	return mutateSet(s, s.doc.IdlingBlacklistedAppIDs, "idling_blacklisted_app_ids", true, appIDs)
}

// RemoveIdlingBlacklistedAppIDs lifts idling exclusions.
func (s *Store) RemoveIdlingBlacklistedAppIDs(appIDs ...uint32) bool {
	return mutateSet(s, s.doc.IdlingBlacklistedAppIDs, "idling_blacklisted_app_ids", false, appIDs)
}

// AddBlacklistedTradePartnerIDs blocks trade partners.
func (s *Store) AddBlacklistedTradePartnerIDs(ids ...uint64) bool {
	return mutateSet(s, s.doc.BlacklistedTradePartnerIDs, "blacklisted_trade_partner_ids", true, ids)
}

// RemoveBlacklistedTradePartnerIDs unblocks trade partners.
func (s *Store) RemoveBlacklistedTradePartnerIDs(ids ...uint64) bool {
	return mutateSet(s, s.doc.BlacklistedTradePartnerIDs, "blacklisted_trade_partner_ids", false, ids)
}

// IsIdlingPriority reports whether the app is a priority target.
func (s *Store) IsIdlingPriority(appID uint32) bool {
	return s.doc.IdlingPriorityAppIDs.Contains(appID)
}

// IsIdlingBlacklisted reports whether the app is excluded from idling.
func (s *Store) IsIdlingBlacklisted(appID uint32) bool {
	return s.doc.IdlingBlacklistedAppIDs.Contains(appID)
}

// IsBlacklistedTradePartner reports whether the partner is blocked.
func (s *Store) IsBlacklistedTradePartner(id uint64) bool {
	return s.doc.BlacklistedTradePartnerIDs.Contains(id)
}

// IdlingPriorityAppIDs returns a sorted snapshot.
func (s *Store) IdlingPriorityAppIDs() []uint32 {
	return s.doc.IdlingPriorityAppIDs.Values()
}

// IdlingBlacklistedAppIDs returns a sorted snapshot.
func (s *Store) IdlingBlacklistedAppIDs() []uint32 {
	return s.doc.IdlingBlacklistedAppIDs.Values()
}

// BlacklistedTradePartnerIDs returns a sorted snapshot.
func (s *Store) BlacklistedTradePartnerIDs() []uint64 {
	return s.doc.BlacklistedTradePartnerIDs.Values()
}

// Stats describes the store for health reporting.
type Stats struct {
	Path                     string    `json:"path"`
	InstanceID               string    `json:"instance_id"`
	Saves                    int64     `json:"saves"`
	SaveFailures             int64     `json:"save_failures"`
	LastSaveAt               time.Time `json:"last_save_at"`
	HasLoginKey              bool      `json:"has_login_key"`
	HasAuthenticator         bool      `json:"has_authenticator"`
	IdlingPriorityApps       int       `json:"idling_priority_apps"`
	IdlingBlacklistedApps    int       `json:"idling_blacklisted_apps"`
	BlacklistedTradePartners int       `json:"blacklisted_trade_partners"`
}

// Stats returns a point-in-time view of the store.
func (s *Store) Stats() Stats {
	stats := Stats{
		Path:                     s.path,
		InstanceID:               s.InstanceID(),
		Saves:                    s.saves.Load(),
		SaveFailures:             s.saveFailures.Load(),
		HasLoginKey:              s.HasLoginKey(),
		HasAuthenticator:         s.HasAuthenticator(),
		IdlingPriorityApps:       s.doc.IdlingPriorityAppIDs.Len(),
		IdlingBlacklistedApps:    s.doc.IdlingBlacklistedAppIDs.Len(),
		BlacklistedTradePartners: s.doc.BlacklistedTradePartnerIDs.Len(),
	}
	if n := s.lastSave.Load(); n != 0 {
		stats.LastSaveAt = time.Unix(0, n)
	}
	return stats
}

// HealthCheck verifies the state file is still present on disk.
func (s *Store) HealthCheck() error {
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("state file health check failed: %w", err)
	}
	return nil
}
