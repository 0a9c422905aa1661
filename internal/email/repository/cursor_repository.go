package repository

import (
	"errors"
	"time"

	emaildomain "mailagent-backend/internal/email/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CursorRepository persists listener cursors so a restart resumes instead of
// reprocessing from zero
type CursorRepository interface {
	// Get returns the stored cursor and whether one exists
	Get(name string) (emaildomain.Cursor, bool, error)
	// Advance stores cursor if it is later than the stored value. It never
	// moves a cursor backwards and returns the value now stored.
	Advance(name string, cursor emaildomain.Cursor) (emaildomain.Cursor, error)
	// Reset overwrites the cursor unconditionally (rebaseline after the
	// provider dropped history)
	Reset(name string, cursor emaildomain.Cursor) error
}

// cursorRepository implements CursorRepository interface
type cursorRepository struct {
	db *gorm.DB
}

// NewCursorRepository creates a new instance of cursorRepository
func NewCursorRepository(db *gorm.DB) CursorRepository {
	return &cursorRepository{
		db: db,
	}
}

func (r *cursorRepository) Get(name string) (emaildomain.Cursor, bool, error) {
	var row emaildomain.SyncCursor
	err := r.db.Where("name = ?", name).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return emaildomain.Cursor(row.Value), true, nil
}

func (r *cursorRepository) Advance(name string, cursor emaildomain.Cursor) (emaildomain.Cursor, error) {
	now := time.Now()

	// Insert the first value; afterwards only a strictly larger value wins.
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"value":      gorm.Expr("CASE WHEN excluded.value > sync_cursors.value THEN excluded.value ELSE sync_cursors.value END"),
			"updated_at": now,
		}),
	}).Create(&emaildomain.SyncCursor{Name: name, Value: uint64(cursor), UpdatedAt: now}).Error
	if err != nil {
		return 0, err
	}

	stored, _, err := r.Get(name)
	return stored, err
}

func (r *cursorRepository) Reset(name string, cursor emaildomain.Cursor) error {
	return r.db.Save(&emaildomain.SyncCursor{Name: name, Value: uint64(cursor), UpdatedAt: time.Now()}).Error
}
