package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/Skotchmaster/bi_dashboard/internal/models"
)

func (r *GormRepo) CreateSession(ctx context.Context, accountID uint, token string, expiresAt time.Time) (*models.Session, error) {
	s := models.Session{
		AccountID:    accountID,
		RefreshToken: token,
		ExpiresAt:    expiresAt.UTC(),
	}
	if err := r.DB.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, fmt.Errorf("repo.CreateSession: %w", err)
	}
	return &s, nil
}

// FindValidSession returns ErrNotFound for unknown and expired tokens alike.
func (r *GormRepo) FindValidSession(ctx context.Context, token string) (*models.Session, error) {
	var s models.Session
	err := r.DB.WithContext(ctx).
		Where("refresh_token = ? AND expires_at > ?", token, r.now().UTC()).
		First(&s).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("repo.FindValidSession: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("repo.FindValidSession: %w", err)
	}
	return &s, nil
}

func (r *GormRepo) DeleteSession(ctx context.Context, token string) error {
	if err := r.DB.WithContext(ctx).Where("refresh_token = ?", token).Delete(&models.Session{}).Error; err != nil {
		return fmt.Errorf("repo.DeleteSession: %w", err)
	}
	return nil
}

// DeleteAccountSession deletes the session only when it belongs to accountID.
func (r *GormRepo) DeleteAccountSession(ctx context.Context, accountID uint, token string) error {
	err := r.DB.WithContext(ctx).
		Where("refresh_token = ? AND account_id = ?", token, accountID).
		Delete(&models.Session{}).Error
	if err != nil {
		return fmt.Errorf("repo.DeleteAccountSession: %w", err)
	}
	return nil
}

func (r *GormRepo) SessionsByAccount(ctx context.Context, accountID uint) ([]models.Session, error) {
	var out []models.Session
	err := r.DB.WithContext(ctx).
		Where("account_id = ? AND expires_at > ?", accountID, r.now().UTC()).
		Order("created_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("repo.SessionsByAccount: %w", err)
	}
	return out, nil
}

func (r *GormRepo) DeleteSessionsByAccount(ctx context.Context, accountID uint) (int64, error) {
	res := r.DB.WithContext(ctx).Where("account_id = ?", accountID).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("repo.DeleteSessionsByAccount: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *GormRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	res := r.DB.WithContext(ctx).Where("expires_at <= ?", r.now().UTC()).Delete(&models.Session{})
	if res.Error != nil {
		return 0, fmt.Errorf("repo.DeleteExpiredSessions: %w", res.Error)
	}
	return res.RowsAffected, nil
}
