package contentstore

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StatusPending marks freshly written entities as waiting for editorial
// review. Nothing this worker writes is ever published directly.
const StatusPending = "pending"

// externalIDField is the reserved structured-field name that is stored on
// the entities table itself instead of an entity_fields row, so that
// lookups by upstream id stay indexable.
const externalIDField = "external_id"

// entities
type Entity struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	Type        string `gorm:"type:varchar(64);not null;index:idx_entities_type_external_id;index:idx_entities_type_title"`
	ExternalID  string `gorm:"type:varchar(64);index:idx_entities_type_external_id"`
	Title       string `gorm:"type:varchar(512);not null;index:idx_entities_type_title"`
	Status      string `gorm:"type:varchar(32);not null"`
	Fingerprint string `gorm:"type:varchar(64)"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Fields []EntityField `gorm:"foreignKey:EntityID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// entity_fields, one row per structured field
type EntityField struct {
	ID       int64          `gorm:"primaryKey;autoIncrement"`
	EntityID int64          `gorm:"not null;uniqueIndex:idx_entity_fields_entity_name"`
	Name     string         `gorm:"type:varchar(128);not null;uniqueIndex:idx_entity_fields_entity_name"`
	Value    datatypes.JSON `gorm:"not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AutoMigrate creates or updates the local mirror schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Entity{},
		&EntityField{},
	)
}
