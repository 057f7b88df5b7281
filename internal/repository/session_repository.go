package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"gate-monitor/internal/domain/monitor"
)

// pendingKey is the fixed storage key for the in-flight detection. One
// row at most exists under it.
const pendingKey = "gate-monitor:pending-detection"

type MonitorSession struct {
	Key       string         `gorm:"primaryKey"`
	Blob      datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// SessionRepository stores the one pending detection that must survive
// a process restart. Everything else in the orchestrator is ephemeral.
type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// SavePending upserts the pending detection under the fixed key.
func (r *SessionRepository) SavePending(ctx context.Context, pending *monitor.PendingDetection) error {
	if pending == nil {
		return r.ClearPending(ctx)
	}

	blob, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("failed to encode pending detection: %w", err)
	}

	row := MonitorSession{
		Key:       pendingKey,
		Blob:      datatypes.JSON(blob),
		UpdatedAt: time.Now(),
	}
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store pending detection: %w", err)
	}
	return nil
}

// LoadPending returns the stored pending detection, or (nil, nil) when
// none exists.
func (r *SessionRepository) LoadPending(ctx context.Context) (*monitor.PendingDetection, error) {
	var row MonitorSession
	err := r.db.WithContext(ctx).Where("key = ?", pendingKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pending detection: %w", err)
	}

	var pending monitor.PendingDetection
	if err := json.Unmarshal(row.Blob, &pending); err != nil {
		// A blob we cannot decode is worse than no blob: drop it so the
		// next restore does not fail the same way.
		_ = r.ClearPending(ctx)
		return nil, fmt.Errorf("failed to decode pending detection: %w", err)
	}
	return &pending, nil
}

// ClearPending removes the stored row entirely; a partial leftover
// would be wrongly restored after the next restart.
func (r *SessionRepository) ClearPending(ctx context.Context) error {
	err := r.db.WithContext(ctx).Where("key = ?", pendingKey).Delete(&MonitorSession{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear pending detection: %w", err)
	}
	return nil
}
