package repository

import (
	"errors"
	"time"

	emaildomain "mailagent-backend/internal/email/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// processedMessageRepository implements ProcessedMessageRepository interface
type processedMessageRepository struct {
	db *gorm.DB
}

// NewProcessedMessageRepository creates a new instance of processedMessageRepository
func NewProcessedMessageRepository(db *gorm.DB) ProcessedMessageRepository {
	return &processedMessageRepository{
		db: db,
	}
}

// Accept inserts with ON CONFLICT DO NOTHING so concurrent submitters of the
// same id agree on a single row
func (r *processedMessageRepository) Accept(msg *emaildomain.Message, kind, ticketID string) (*emaildomain.ProcessedMessage, bool, error) {
	now := time.Now()
	record := &emaildomain.ProcessedMessage{
		MsgID:      msg.ID,
		Kind:       kind,
		TicketID:   ticketID,
		Status:     emaildomain.StatusPending,
		Subject:    msg.Subject,
		From:       msg.From,
		Body:       msg.Body,
		ReceivedAt: msg.ReceivedAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(record)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return record, true, nil
	}

	existing, err := r.Get(msg.ID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, gorm.ErrRecordNotFound
	}
	return existing, false, nil
}

func (r *processedMessageRepository) Get(msgID string) (*emaildomain.ProcessedMessage, error) {
	var record emaildomain.ProcessedMessage
	err := r.db.Where("msg_id = ?", msgID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

func (r *processedMessageRepository) MarkDone(msgID, result string, attempts int) error {
	return r.db.Model(&emaildomain.ProcessedMessage{}).Where("msg_id = ?", msgID).
		Updates(map[string]interface{}{
			"status":     emaildomain.StatusDone,
			"result":     result,
			"attempts":   attempts,
			"last_error": "",
			"updated_at": time.Now(),
		}).Error
}

func (r *processedMessageRepository) MarkFailed(msgID, lastError string, attempts int) error {
	return r.db.Model(&emaildomain.ProcessedMessage{}).Where("msg_id = ?", msgID).
		Updates(map[string]interface{}{
			"status":     emaildomain.StatusFailed,
			"last_error": lastError,
			"attempts":   attempts,
			"updated_at": time.Now(),
		}).Error
}

func (r *processedMessageRepository) Rearm(msgID, ticketID string) error {
	result := r.db.Model(&emaildomain.ProcessedMessage{}).
		Where("msg_id = ? AND status = ?", msgID, emaildomain.StatusFailed).
		Updates(map[string]interface{}{
			"status":     emaildomain.StatusPending,
			"ticket_id":  ticketID,
			"attempts":   0,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *processedMessageRepository) ListFailed(limit int) ([]*emaildomain.ProcessedMessage, error) {
	var records []*emaildomain.ProcessedMessage
	err := r.db.Where("status = ?", emaildomain.StatusFailed).
		Order("updated_at DESC").Limit(limit).Find(&records).Error
	return records, err
}

func (r *processedMessageRepository) ListStalePending(before time.Time, limit int) ([]*emaildomain.ProcessedMessage, error) {
	var records []*emaildomain.ProcessedMessage
	err := r.db.Where("status = ? AND updated_at < ?", emaildomain.StatusPending, before).
		Order("received_at ASC").Limit(limit).Find(&records).Error
	return records, err
}
