package notification

import (
	"context"
	"fmt"
	"log"
	"time"

	"mailagent-backend/pkg/fcm"
)

// Sender delivers a push notification to device tokens and reports the
// tokens that were rejected
type Sender interface {
	SendToDevices(ctx context.Context, tokens []string, alert fcm.Alert) ([]string, error)
}

// TokenStore holds operator device tokens
type TokenStore interface {
	ListTokens() ([]string, error)
	DeleteToken(token string) error
}

// Alerter pushes operator-facing alerts. Without a sender or registered
// devices it only logs.
type Alerter struct {
	sender Sender
	tokens TokenStore
}

// NewAlerter creates an Alerter. sender may be nil.
func NewAlerter(sender Sender, tokens TokenStore) *Alerter {
	return &Alerter{
		sender: sender,
		tokens: tokens,
	}
}

// CredentialExpired reports that background mail processing stopped
func (a *Alerter) CredentialExpired(ctx context.Context, cause error) {
	a.send(ctx, fcm.Alert{
		Kind:   "credential_expired",
		Title:  "Mail credential expired",
		Body:   fmt.Sprintf("Mail ingestion stopped and needs re-authorization: %v", cause),
		Urgent: true,
	})
}

// PermanentFailure reports a message that exhausted its retries
func (a *Alerter) PermanentFailure(ctx context.Context, msgID, subject string, cause error) {
	a.send(ctx, fcm.Alert{
		Kind:   "permanent_failure",
		Title:  "Message processing failed",
		Body:   fmt.Sprintf("%q could not be processed: %v", subject, cause),
		Urgent: true,
		Data:   map[string]string{"msg_id": msgID},
	})
}

// TaskDue reports an extracted task whose due date has arrived
func (a *Alerter) TaskDue(ctx context.Context, taskID, title string, due time.Time) {
	a.send(ctx, fcm.Alert{
		Kind:  "task_due",
		Title: "Task due: " + title,
		Body:  "Due " + due.Format("2006-01-02 15:04"),
		Data:  map[string]string{"task_id": taskID},
	})
}

func (a *Alerter) send(ctx context.Context, alert fcm.Alert) {
	log.Printf("[Alert] %s: %s", alert.Title, alert.Body)

	if a.sender == nil || a.tokens == nil {
		return
	}

	tokens, err := a.tokens.ListTokens()
	if err != nil {
		log.Printf("[Alert] Failed to load device tokens: %v", err)
		return
	}
	if len(tokens) == 0 {
		return
	}

	failed, err := a.sender.SendToDevices(ctx, tokens, alert)
	if err != nil {
		log.Printf("[Alert] Failed to push alert: %v", err)
		return
	}

	// Cleanup tokens FCM rejected
	for _, token := range failed {
		if err := a.tokens.DeleteToken(token); err != nil {
			log.Printf("[Alert] Failed to delete rejected token: %v", err)
		}
	}
}
