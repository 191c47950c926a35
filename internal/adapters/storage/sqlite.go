package storage

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/meshgram/meshgram/internal/core/domain"
)

// SQLiteStore implements ports.DirectoryStore using GORM and SQLite.
// The directory is small enough that every persisted write rewrites the
// whole snapshot.
type SQLiteStore struct {
	db *gorm.DB
}

// NodeModel is the GORM model for directory entries.
type NodeModel struct {
	ID                string `gorm:"primaryKey"`
	LongName          *string
	ShortName         *string
	Latitude          *float64
	Longitude         *float64
	Altitude          *int
	UpdatedAt         time.Time
	PositionUpdatedAt *time.Time
}

// NewSQLiteStore initializes the database and migrates schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open node database: %w", err)
	}

	if err := db.AutoMigrate(&NodeModel{}); err != nil {
		return nil, fmt.Errorf("migrate node schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// LoadAll reads the full directory snapshot.
func (s *SQLiteStore) LoadAll() ([]domain.NodeRecord, error) {
	var models []NodeModel
	if err := s.db.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load node snapshot: %w", err)
	}

	nodes := make([]domain.NodeRecord, len(models))
	for i, m := range models {
		nodes[i] = toDomain(m)
	}
	return nodes, nil
}

// SaveAll rewrites the full directory snapshot in one transaction.
func (s *SQLiteStore) SaveAll(nodes []domain.NodeRecord) error {
	models := make([]NodeModel, len(nodes))
	for i, n := range nodes {
		models[i] = toModel(n)
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if len(models) == 0 {
			return nil
		}
		return tx.Clauses(clause.OnConflict{
			UpdateAll: true,
		}).CreateInBatches(models, 100).Error
	})
}

// Close releases the underlying connection pool.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func toModel(n domain.NodeRecord) NodeModel {
	m := NodeModel{
		ID:                n.ID,
		LongName:          n.LongName,
		ShortName:         n.ShortName,
		UpdatedAt:         n.UpdatedAt,
		PositionUpdatedAt: n.PositionUpdatedAt,
	}
	if n.Position != nil {
		lat, lon := n.Position.Latitude, n.Position.Longitude
		m.Latitude = &lat
		m.Longitude = &lon
		m.Altitude = n.Position.Altitude
	}
	return m
}

func toDomain(m NodeModel) domain.NodeRecord {
	n := domain.NodeRecord{
		ID:                m.ID,
		LongName:          m.LongName,
		ShortName:         m.ShortName,
		UpdatedAt:         m.UpdatedAt,
		PositionUpdatedAt: m.PositionUpdatedAt,
	}
	if m.Latitude != nil && m.Longitude != nil {
		n.Position = &domain.Position{
			Latitude:  *m.Latitude,
			Longitude: *m.Longitude,
			Altitude:  m.Altitude,
		}
	}
	return n
}
