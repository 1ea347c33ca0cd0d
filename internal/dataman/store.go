// Package dataman implements the persistence adapter for mission items
// (spec §4.4): a namespaced, slot-addressed store backed by SQLite via
// GORM, mirroring the original dataman module's four namespaces.
package dataman

import (
	"database/sql"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Namespace identifies one of the four persisted slot spaces.
type Namespace string

const (
	// NamespaceWaypoints0 and NamespaceWaypoints1 are the double-buffered
	// offboard mission namespaces; registry.Registry tracks which one is
	// currently active (spec §4.6).
	NamespaceWaypoints0 Namespace = "WAYPOINTS_OFFBOARD0"
	NamespaceWaypoints1 Namespace = "WAYPOINTS_OFFBOARD1"
	NamespaceFence      Namespace = "FENCE_POINTS"
	NamespaceSafepoints Namespace = "SAFE_POINTS"
)

// WaypointNamespace picks the offboard namespace for the given dataman id
// (0 or 1), matching init_offboard_mission's buffer selection.
func WaypointNamespace(datamanID int) Namespace {
	if datamanID == 1 {
		return NamespaceWaypoints1
	}
	return NamespaceWaypoints0
}

// row is the single table backing every namespace; slot 0 always holds
// the namespace's stats header, slots 1..N hold cbor-encoded items.
type row struct {
	Namespace string `gorm:"primaryKey;column:namespace"`
	Slot      int    `gorm:"primaryKey;column:slot"`
	Blob      []byte
}

func (row) TableName() string { return "dataman_slots" }

// Header is the stats record persisted at slot 0 of every namespace,
// mirroring mission_stats_entry_s.
type Header struct {
	Count      uint16
	CurrentSeq int32
}

// Store is the vehicle-side persistence handle. It is safe for
// concurrent use from multiple goroutines; callers that need
// read-modify-write semantics across several calls (e.g. fence
// replacement) must serialize externally with Lock/Unlock, matching
// dm_lock/dm_unlock(DM_KEY_FENCE_POINTS).
type Store struct {
	db *gorm.DB

	locksMu sync.Mutex
	locks   map[Namespace]*sync.Mutex
}

// Config mirrors the teacher's database.Config shape (spec §10.2).
type Config struct {
	Path string
}

// Open creates/opens the sqlite-backed slot store and migrates its schema.
func Open(cfg Config) (*Store, error) {
	dialector := sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        cfg.Path,
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.WithMessage(err, "dataman: open sqlite")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.WithMessage(err, "dataman: underlying sql.DB")
	}
	if err := configurePragmas(sqlDB); err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&row{}); err != nil {
		return nil, errors.WithMessage(err, "dataman: automigrate")
	}

	return &Store{db: db, locks: make(map[Namespace]*sync.Mutex)}, nil
}

// Lock acquires the per-namespace exclusive lock, blocking until any
// other holder releases it. Mirrors dm_lock(ns) in mavlink_mission.cpp.
func (s *Store) Lock(ns Namespace) {
	s.namespaceLock(ns).Lock()
}

// Unlock releases the per-namespace exclusive lock. Mirrors dm_unlock(ns).
func (s *Store) Unlock(ns Namespace) {
	s.namespaceLock(ns).Unlock()
}

func (s *Store) namespaceLock(ns Namespace) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	mu, ok := s.locks[ns]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[ns] = mu
	}
	return mu
}

func configurePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			return errors.WithMessagef(err, "dataman: pragma %q", p)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WriteHeader persists the stats header for ns at slot 0.
func (s *Store) WriteHeader(ns Namespace, h Header) error {
	return s.writeSlot(ns, 0, h)
}

// ReadHeader loads the stats header for ns, returning the zero Header
// and no error if ns has never been written.
func (s *Store) ReadHeader(ns Namespace) (Header, error) {
	var h Header
	ok, err := s.readSlot(ns, 0, &h)
	if err != nil {
		return Header{}, err
	}
	if !ok {
		return Header{}, nil
	}
	return h, nil
}

// WriteItem persists v (any cbor-marshalable value) at slot (1-based
// index within ns).
func (s *Store) WriteItem(ns Namespace, slot int, v interface{}) error {
	if slot < 1 {
		return errors.Errorf("dataman: item slot must be >= 1, got %d", slot)
	}
	return s.writeSlot(ns, slot, v)
}

// ReadItem decodes the item at slot into v. ok is false if the slot has
// no stored value.
func (s *Store) ReadItem(ns Namespace, slot int, v interface{}) (bool, error) {
	if slot < 1 {
		return false, errors.Errorf("dataman: item slot must be >= 1, got %d", slot)
	}
	return s.readSlot(ns, slot, v)
}

// Clear removes every slot (including the header) in ns, matching the
// original's clear-before-write mission replace semantics.
func (s *Store) Clear(ns Namespace) error {
	err := s.db.Where("namespace = ?", string(ns)).Delete(&row{}).Error
	if err != nil {
		return errors.WithMessagef(err, "dataman: clear namespace %s", ns)
	}
	return nil
}

func (s *Store) writeSlot(ns Namespace, slot int, v interface{}) error {
	blob, err := cbor.Marshal(v)
	if err != nil {
		return errors.WithMessagef(err, "dataman: encode %s[%d]", ns, slot)
	}
	r := row{Namespace: string(ns), Slot: slot, Blob: blob}
	err = s.db.Save(&r).Error
	if err != nil {
		return errors.WithMessagef(err, "dataman: write %s[%d]", ns, slot)
	}
	return nil
}

func (s *Store) readSlot(ns Namespace, slot int, v interface{}) (bool, error) {
	var r row
	err := s.db.Where("namespace = ? AND slot = ?", string(ns), slot).First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.WithMessagef(err, "dataman: read %s[%d]", ns, slot)
	}
	if err := cbor.Unmarshal(r.Blob, v); err != nil {
		return false, errors.WithMessagef(err, "dataman: decode %s[%d]", ns, slot)
	}
	return true, nil
}
