package mapping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	kitsync "github.com/rudderlabs/rudder-go-kit/sync"

	"github.com/trackport/trackport/model"
)

// ErrConflict is returned when a put would change the internal id of an
// existing mapping. Mappings are append-only once set; a conflict means a
// correctness bug or a concurrent-job violation upstream.
type ErrConflict struct {
	Key      Key
	Existing string
	Proposed string
}

func (e *ErrConflict) Error() string {
	return fmt.Sprintf("mapping conflict for %s: existing internal id %s, proposed %s",
		e.Key, e.Existing, e.Proposed)
}

// Key identifies one entity mapping. At most one internal id may ever exist
// per key.
type Key struct {
	WorkspaceID    string
	ConnectionID   string
	ExternalSource model.ConnectorKind
	ExternalID     string
	EntityType     model.EntityType
}

func (k Key) String() string {
	return strings.Join([]string{
		k.WorkspaceID, k.ConnectionID, string(k.ExternalSource), string(k.EntityType), k.ExternalID,
	}, "/")
}

// EntityMapping is the persisted correlation row between one external entity
// and one internal entity. Never deleted while the connection is active.
type EntityMapping struct {
	ID             uint      `gorm:"primaryKey"`
	WorkspaceID    string    `gorm:"uniqueIndex:idx_mapping_key"`
	ConnectionID   string    `gorm:"uniqueIndex:idx_mapping_key"`
	ExternalSource string    `gorm:"uniqueIndex:idx_mapping_key"`
	ExternalID     string    `gorm:"uniqueIndex:idx_mapping_key"`
	EntityType     string    `gorm:"uniqueIndex:idx_mapping_key"`
	InternalID     string    ``
	CreatedAt      time.Time ``
	UpdatedAt      time.Time ``
}

func (EntityMapping) TableName() string { return "entity_mappings" }

// Store resolves external ids to internal ids within a connection's scope.
// Reads go through an in-process lru cache; writers for the same key are
// serialized with a partition lock so concurrent puts cannot race past the
// conflict check.
type Store struct {
	db      *gorm.DB
	log     logger.Logger
	cache   *lru.Cache[Key, string]
	keyLock *kitsync.PartitionLocker
}

func NewStore(db *gorm.DB, conf *config.Config, log logger.Logger) (*Store, error) {
	size := conf.GetInt("Mapping.cacheSize", 100000)
	cache, err := lru.New[Key, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating mapping cache: %w", err)
	}
	s := &Store{
		db:      db,
		log:     log.Child("mapping"),
		cache:   cache,
		keyLock: kitsync.NewPartitionLocker(),
	}
	if err := db.AutoMigrate(&EntityMapping{}); err != nil {
		return nil, fmt.Errorf("migrating entity mappings: %w", err)
	}
	return s, nil
}

// Get returns the internal id mapped to the key, or ok=false when the entity
// has not been pushed yet. Never mutates.
func (s *Store) Get(ctx context.Context, key Key) (string, bool, error) {
	if id, ok := s.cache.Get(key); ok {
		return id, id != "", nil
	}

	var row EntityMapping
	err := s.db.WithContext(ctx).Where(s.keyQuery(key)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("fetching mapping %s: %w", key, err)
	}
	s.cache.Add(key, row.InternalID)
	return row.InternalID, row.InternalID != "", nil
}

// Put records the internal id for the key. Calling twice with the same
// internal id is a no-op; a different internal id for an existing mapping
// fails with ErrConflict, leaving the stored mapping untouched.
func (s *Store) Put(ctx context.Context, key Key, internalID string) error {
	lockKey := key.String()
	s.keyLock.Lock(lockKey)
	defer s.keyLock.Unlock(lockKey)

	var row EntityMapping
	err := s.db.WithContext(ctx).Where(s.keyQuery(key)).First(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = EntityMapping{
			WorkspaceID:    key.WorkspaceID,
			ConnectionID:   key.ConnectionID,
			ExternalSource: string(key.ExternalSource),
			ExternalID:     key.ExternalID,
			EntityType:     string(key.EntityType),
			InternalID:     internalID,
		}
		if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
			return fmt.Errorf("inserting mapping %s: %w", key, err)
		}
	case err != nil:
		return fmt.Errorf("fetching mapping %s: %w", key, err)
	case row.InternalID == "":
		// lazily created row from a previous pull, fill in the internal id
		if err := s.db.WithContext(ctx).Model(&row).Update("internal_id", internalID).Error; err != nil {
			return fmt.Errorf("updating mapping %s: %w", key, err)
		}
	case row.InternalID != internalID:
		s.log.Errorn("mapping conflict",
			logger.NewStringField("key", key.String()),
			logger.NewStringField("existing", row.InternalID),
			logger.NewStringField("proposed", internalID))
		return &ErrConflict{Key: key, Existing: row.InternalID, Proposed: internalID}
	}

	s.cache.Add(key, internalID)
	return nil
}

// Touch lazily creates an empty mapping row the first time an external entity
// is seen, so re-syncs can tell "seen but not pushed" from "never seen".
func (s *Store) Touch(ctx context.Context, key Key) error {
	lockKey := key.String()
	s.keyLock.Lock(lockKey)
	defer s.keyLock.Unlock(lockKey)

	var row EntityMapping
	err := s.db.WithContext(ctx).Where(s.keyQuery(key)).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row = EntityMapping{
			WorkspaceID:    key.WorkspaceID,
			ConnectionID:   key.ConnectionID,
			ExternalSource: string(key.ExternalSource),
			ExternalID:     key.ExternalID,
			EntityType:     string(key.EntityType),
		}
		return s.db.WithContext(ctx).Create(&row).Error
	}
	return err
}

func (s *Store) keyQuery(key Key) map[string]any {
	return map[string]any{
		"workspace_id":    key.WorkspaceID,
		"connection_id":   key.ConnectionID,
		"external_source": string(key.ExternalSource),
		"external_id":     key.ExternalID,
		"entity_type":     string(key.EntityType),
	}
}
