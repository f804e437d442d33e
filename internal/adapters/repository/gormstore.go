package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/okian/noderank/internal/domain/model"
	"github.com/okian/noderank/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// modelRow is the ai_model table layout.
type modelRow struct {
	ID              string    `gorm:"column:id;type:uuid;primaryKey"`
	Name            string    `gorm:"column:name;size:255;not null"`
	ModelPath       string    `gorm:"column:modelPath;not null"`
	Status          string    `gorm:"column:status;size:32;not null;default:not-trained"`
	BackupModelPath *string   `gorm:"column:backupModelPath"`
	Metadata        *string   `gorm:"column:metadata;type:text"`
	CreatedAt       time.Time `gorm:"column:createdAt;index"`
	UpdatedAt       time.Time `gorm:"column:updatedAt"`
}

func (modelRow) TableName() string { return "ai_model" }

func toRow(rec model.Record) modelRow {
	return modelRow{
		ID:              rec.ID,
		Name:            rec.Name,
		ModelPath:       rec.ArtifactLocation,
		Status:          string(rec.Status),
		BackupModelPath: rec.BackupLocation,
		Metadata:        rec.Metadata,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
	}
}

func (r modelRow) record() model.Record {
	return model.Record{
		ID:               r.ID,
		Name:             r.Name,
		ArtifactLocation: r.ModelPath,
		Status:           model.Status(r.Status),
		BackupLocation:   r.BackupModelPath,
		Metadata:         r.Metadata,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

// GormStore is a Store on a relational database through gorm.
type GormStore struct {
	db            *gorm.DB
	log           logger.Logger
	slowThreshold time.Duration
	autoMigrate   bool
}

var _ Store = (*GormStore)(nil)

// Open connects to the database named by driver and dsn and, unless disabled,
// migrates the ai_model table.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*GormStore, error) {
	s := &GormStore{
		log:           logger.Nop(),
		slowThreshold: defaultSlowThreshold,
		autoMigrate:   true,
	}
	for _, opt := range opts {
		opt(s)
	}

	var dialector gorm.Dialector
	switch strings.ToLower(driver) {
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   newGormLogger(s.log, s.slowThreshold),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	s.db = db

	if s.autoMigrate {
		if err := db.WithContext(ctx).AutoMigrate(&modelRow{}); err != nil {
			return nil, fmt.Errorf("migrate ai_model: %w", err)
		}
	}
	return s, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Create inserts rec.
func (s *GormStore) Create(ctx context.Context, rec model.Record) error {
	defer observe("create", time.Now())
	if err := validate(rec); err != nil {
		return err
	}
	row := toRow(rec)
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return fmt.Errorf("insert model %s: %w", rec.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicate
	}
	return nil
}

// wellFormedID reports whether id can be a stored key. Postgres rejects
// non-uuid literals for a uuid column, so such ids are answered without a query.
func wellFormedID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// FindByID returns the record for id.
func (s *GormStore) FindByID(ctx context.Context, id string) (model.Record, error) {
	defer observe("find_by_id", time.Now())
	if !wellFormedID(id) {
		return model.Record{}, ErrNotFound
	}
	var row modelRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("find model %s: %w", id, err)
	}
	return row.record(), nil
}

// FindAll returns all records ordered by creation time, then id.
func (s *GormStore) FindAll(ctx context.Context) ([]model.Record, error) {
	defer observe("find_all", time.Now())
	var rows []modelRow
	err := s.db.WithContext(ctx).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "createdAt"}}).
		Order(clause.OrderByColumn{Column: clause.Column{Name: "id"}}).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	out := make([]model.Record, len(rows))
	for i, r := range rows {
		out[i] = r.record()
	}
	return out, nil
}

// UpdateStatus sets status and updatedAt.
func (s *GormStore) UpdateStatus(ctx context.Context, id string, status model.Status, at time.Time) (model.Record, error) {
	defer observe("update_status", time.Now())
	if !status.Valid() {
		return model.Record{}, ErrInvalidRecord
	}
	if !wellFormedID(id) {
		return model.Record{}, ErrNotFound
	}
	var out model.Record
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&modelRow{}).Where("id = ?", id).Updates(map[string]any{
			"status":    string(status),
			"updatedAt": at.UTC(),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		var row modelRow
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			return err
		}
		out = row.record()
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return model.Record{}, ErrNotFound
	}
	if err != nil {
		return model.Record{}, fmt.Errorf("update model %s: %w", id, err)
	}
	return out, nil
}

// Delete removes the record for id.
func (s *GormStore) Delete(ctx context.Context, id string) error {
	defer observe("delete", time.Now())
	if !wellFormedID(id) {
		return ErrNotFound
	}
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&modelRow{})
	if res.Error != nil {
		return fmt.Errorf("delete model %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Count returns the number of records.
func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&modelRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count models: %w", err)
	}
	return int(n), nil
}
