package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeliveryStatus is the per-batch audit row. It records outcomes only; no
// payload content is ever persisted.
type DeliveryStatus struct {
	RequestID string `gorm:"primaryKey"`
	Status    string
	UpdatedAt time.Time
	Backend   string
	Detail    string
}

type StatusStore struct {
	db        *gorm.DB
	tableName string
}

func NewStatusStore(db *gorm.DB, tableName string) *StatusStore {
	if tableName == "" {
		tableName = "delivery_statuses"
	}

	// Connectivity is validated by the caller; a migration failure here
	// surfaces on the first UpdateStatus call instead.
	_ = db.Table(tableName).AutoMigrate(&DeliveryStatus{})

	return &StatusStore{
		db:        db,
		tableName: tableName,
	}
}

func (s *StatusStore) UpdateStatus(ctx context.Context, requestID, status, backend, detail string) error {
	row := DeliveryStatus{
		RequestID: requestID,
		Status:    status,
		UpdatedAt: time.Now(),
		Backend:   backend,
		Detail:    detail,
	}
	return s.db.WithContext(ctx).Table(s.tableName).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "request_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "updated_at", "backend", "detail"}),
		}).Create(&row).Error
}
