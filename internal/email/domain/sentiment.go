package domain

import "time"

// Sentiment stores the sentiment/priority tag derived from one message
type Sentiment struct {
	MsgID       string    `json:"msg_id" gorm:"primaryKey"`
	Sentiment   string    `json:"sentiment" gorm:"not null"`
	Confidence  float64   `json:"confidence"`
	Priority    string    `json:"priority"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body" gorm:"type:text"`
	ProcessedAt time.Time `json:"processed_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (Sentiment) TableName() string {
	return "sentiment_analysis"
}
