package repository

import (
	"time"

	authdomain "mailagent-backend/internal/auth/domain"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FCMTokenRepository defines the interface for operator device token operations
type FCMTokenRepository interface {
	SaveToken(token, deviceInfo string) error
	ListTokens() ([]string, error)
	ListDevices() ([]authdomain.FCMToken, error)
	DeleteToken(token string) error
}

// fcmTokenRepository implements FCMTokenRepository interface
type fcmTokenRepository struct {
	db *gorm.DB
}

// NewFCMTokenRepository creates a new instance of fcmTokenRepository
func NewFCMTokenRepository(db *gorm.DB) FCMTokenRepository {
	return &fcmTokenRepository{
		db: db,
	}
}

// SaveToken saves or updates a device token (atomic upsert)
func (r *fcmTokenRepository) SaveToken(token, deviceInfo string) error {
	now := time.Now()
	fcmToken := &authdomain.FCMToken{
		ID:         uuid.New().String(),
		Token:      token,
		DeviceInfo: deviceInfo,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	// INSERT ... ON CONFLICT (token) DO UPDATE
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "token"}},
		DoUpdates: clause.AssignmentColumns([]string{"device_info", "updated_at"}),
	}).Create(fcmToken).Error
}

// ListTokens returns every registered device token
func (r *fcmTokenRepository) ListTokens() ([]string, error) {
	var tokens []string
	err := r.db.Model(&authdomain.FCMToken{}).Order("created_at ASC").Pluck("token", &tokens).Error
	return tokens, err
}

// ListDevices returns registered devices without exposing their tokens
func (r *fcmTokenRepository) ListDevices() ([]authdomain.FCMToken, error) {
	var devices []authdomain.FCMToken
	err := r.db.Order("created_at ASC").Find(&devices).Error
	return devices, err
}

// DeleteToken removes a specific device token
func (r *fcmTokenRepository) DeleteToken(token string) error {
	return r.db.Where("token = ?", token).Delete(&authdomain.FCMToken{}).Error
}
