package repo

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/Skotchmaster/bi_dashboard/internal/models"
)

func (r *GormRepo) CreateAccount(ctx context.Context, a *models.Account) error {
	const op = "repo.CreateAccount"

	if err := r.DB.WithContext(ctx).Create(a).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrAccountExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// bootstrapLockKey serializes CreateFirstAccount across processes on postgres.
const bootstrapLockKey = 7_351_200_001

// CreateFirstAccount inserts the account only while none exists. The count and the
// insert run in one transaction; on postgres an advisory lock makes
// concurrent callers wait for each other. sqlite serializes writers itself.
func (r *GormRepo) CreateFirstAccount(ctx context.Context, a *models.Account) error {
	const op = "repo.CreateFirstAccount"

	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", bootstrapLockKey).Error; err != nil {
				return err
			}
		}

		var n int64
		if err := tx.Model(&models.Account{}).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrNotEmpty
		}
		return tx.Create(a).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, ErrAccountExists)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *GormRepo) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.accountWhere(ctx, "repo.AccountByEmail", "email = ?", email)
}

func (r *GormRepo) AccountByID(ctx context.Context, id uint) (*models.Account, error) {
	return r.accountWhere(ctx, "repo.AccountByID", "id = ?", id)
}

func (r *GormRepo) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Account{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("repo.CountAccounts: %w", err)
	}
	return n, nil
}

func (r *GormRepo) accountWhere(ctx context.Context, op, query string, arg any) (*models.Account, error) {
	var a models.Account
	if err := r.DB.WithContext(ctx).Where(query, arg).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &a, nil
}
