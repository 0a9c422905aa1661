package repository

import (
	emaildomain "mailagent-backend/internal/email/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SentimentRepository defines the interface for sentiment record operations
type SentimentRepository interface {
	// Upsert saves or replaces the sentiment record for a message id
	Upsert(sentiment *emaildomain.Sentiment) error
	// List returns sentiment records, most recently processed first
	List(limit int) ([]*emaildomain.Sentiment, error)
}

// sentimentRepository implements SentimentRepository interface
type sentimentRepository struct {
	db *gorm.DB
}

// NewSentimentRepository creates a new instance of sentimentRepository
func NewSentimentRepository(db *gorm.DB) SentimentRepository {
	return &sentimentRepository{
		db: db,
	}
}

func (r *sentimentRepository) Upsert(sentiment *emaildomain.Sentiment) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "msg_id"}},
		UpdateAll: true,
	}).Create(sentiment).Error
}

func (r *sentimentRepository) List(limit int) ([]*emaildomain.Sentiment, error) {
	var records []*emaildomain.Sentiment
	err := r.db.Order("processed_at DESC").Limit(limit).Find(&records).Error
	return records, err
}
