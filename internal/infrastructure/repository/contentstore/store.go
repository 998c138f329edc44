package contentstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/avast/retry-go"
	"github.com/bytedance/sonic"
	"github.com/lucasjahn/simplyOrg-connector/internal/config"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the adapter in front of the local content database. Upstream
// objects are mirrored as entities plus one row per structured field.
type Store struct {
	db  *gorm.DB
	log *slog.Logger
}

func New(cfg config.Store, log *slog.Logger) (*Store, error) {
	var db *gorm.DB
	err := retry.Do(
		func() error {
			var err error
			db, err = open(cfg)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Ping()
		},
		retry.Attempts(cfg.RetryConnAttempts),
		retry.Delay(cfg.RetryConnDelay),
		retry.MaxDelay(cfg.RetryConnMaxDelay),
	)
	if err != nil {
		log.Error("failed to connect to content store", slog.Any("error", err))
		return nil, err
	}

	if err := AutoMigrate(db); err != nil {
		log.Error("failed to migrate content store schema", slog.Any("error", err))
		return nil, err
	}

	return &Store{
		db:  db,
		log: log.With(slog.String("component", "content_store")),
	}, nil
}

func open(cfg config.Store) (*gorm.DB, error) {
	switch cfg.Driver {
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{})
	case "sqlite", "":
		return gorm.Open(sqlite.Open(cfg.DSN), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// FindEntityByExternalID returns the entity id mirroring the given upstream
// id, or found=false when no such entity exists.
func (s *Store) FindEntityByExternalID(ctx context.Context, externalID, entityType string) (int64, bool, error) {
	var ent Entity
	err := s.db.WithContext(ctx).
		Select("id").
		Where("type = ? AND external_id = ?", entityType, externalID).
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ent.ID, true, nil
}

// FindEntityByTitle returns the oldest entity of the given type with an
// exactly matching title. Used to adopt entities that predate upstream ids.
func (s *Store) FindEntityByTitle(ctx context.Context, title, entityType string) (int64, bool, error) {
	var ent Entity
	err := s.db.WithContext(ctx).
		Select("id").
		Where("type = ? AND title = ?", entityType, title).
		Order("id").
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return ent.ID, true, nil
}

// CreateEntity inserts a new entity. An empty status defaults to pending.
func (s *Store) CreateEntity(ctx context.Context, entityType, title, status string) (int64, error) {
	if status == "" {
		status = StatusPending
	}
	ent := Entity{
		Type:   entityType,
		Title:  title,
		Status: status,
	}
	if err := s.db.WithContext(ctx).Create(&ent).Error; err != nil {
		return 0, err
	}
	return ent.ID, nil
}

func (s *Store) UpdateEntityTitle(ctx context.Context, id int64, title string) error {
	res := s.db.WithContext(ctx).
		Model(&Entity{}).
		Where("id = ?", id).
		Update("title", title)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetStructuredFields upserts the given field map for an entity. The
// reserved external_id key lands on the entities table, everything else in
// entity_fields keyed by (entity_id, name).
func (s *Store) SetStructuredFields(ctx context.Context, id int64, fields map[string]any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for name, value := range fields {
			if name == externalIDField {
				res := tx.Model(&Entity{}).
					Where("id = ?", id).
					Update("external_id", fmt.Sprint(value))
				if res.Error != nil {
					return res.Error
				}
				if res.RowsAffected == 0 {
					return gorm.ErrRecordNotFound
				}
				continue
			}

			raw, err := sonic.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode field %s: %w", name, err)
			}
			row := EntityField{
				EntityID: id,
				Name:     name,
				Value:    datatypes.JSON(raw),
			}
			err = tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "entity_id"}, {Name: "name"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// GetFingerprint returns the stored content fingerprint of an entity, or
// found=false when the entity is missing or has never been fingerprinted.
func (s *Store) GetFingerprint(ctx context.Context, id int64) (string, bool, error) {
	var ent Entity
	err := s.db.WithContext(ctx).
		Select("fingerprint").
		Where("id = ?", id).
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if ent.Fingerprint == "" {
		return "", false, nil
	}
	return ent.Fingerprint, true, nil
}

func (s *Store) SetFingerprint(ctx context.Context, id int64, fingerprint string) error {
	res := s.db.WithContext(ctx).
		Model(&Entity{}).
		Where("id = ?", id).
		Update("fingerprint", fingerprint)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// Ping reports whether the underlying database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
