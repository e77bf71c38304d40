package repo

import (
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAccountExists = errors.New("account already exists")
	ErrNotEmpty      = errors.New("accounts table is not empty")
)

type GormRepo struct {
	DB  *gorm.DB
	now func() time.Time
}

func New(db *gorm.DB) *GormRepo {
	return &GormRepo{DB: db, now: time.Now}
}

// WithClock is used by tests that need to move time past session expiry.
func (r *GormRepo) WithClock(now func() time.Time) *GormRepo {
	r.now = now
	return r
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
