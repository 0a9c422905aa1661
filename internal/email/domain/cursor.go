package domain

import (
	"strconv"
	"time"
)

// Cursor is an opaque, totally ordered sync checkpoint. For Gmail it is a
// historyId, for IMAP it packs UIDVALIDITY and UID.
type Cursor uint64

// IsZero reports whether no baseline has been captured.
func (c Cursor) IsZero() bool { return c == 0 }

// After reports whether c is strictly later than other.
func (c Cursor) After(other Cursor) bool { return c > other }

func (c Cursor) String() string { return strconv.FormatUint(uint64(c), 10) }

// SyncCursor is the durable mirror of a listener's cursor.
type SyncCursor struct {
	Name      string    `json:"name" gorm:"primaryKey"`
	Value     uint64    `json:"value" gorm:"not null"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (SyncCursor) TableName() string {
	return "sync_cursors"
}
