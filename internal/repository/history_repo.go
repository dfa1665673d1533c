package repository

import (
	"context"
	"errors"

	"pointsystem/internal/model"

	"gorm.io/gorm"
)

type HistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Append(ctx context.Context, history *model.PointHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *HistoryRepository) ListByUser(ctx context.Context, userID int64) ([]*model.PointHistory, error) {
	histories := make([]*model.PointHistory, 0)
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&histories).Error
	return histories, err
}

func (r *HistoryRepository) LastByUser(ctx context.Context, userID int64) (*model.PointHistory, error) {
	var history model.PointHistory
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		First(&history).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &history, nil
}
