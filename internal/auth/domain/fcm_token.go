package domain

import "time"

// FCMToken is an operator device registered for push alerts
type FCMToken struct {
	ID         string    `json:"id" gorm:"primaryKey"`
	Token      string    `json:"-" gorm:"uniqueIndex;not null"` // Don't expose token in JSON
	DeviceInfo string    `json:"device_info"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
