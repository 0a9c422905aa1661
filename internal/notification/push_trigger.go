package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// GmailNotification is the payload Gmail publishes for a watched mailbox
type GmailNotification struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// Poller is nudged to poll immediately
type Poller interface {
	Trigger()
}

// PushTrigger listens to Gmail watch notifications on a Pub/Sub subscription
// and wakes the listener early instead of waiting for the next tick
type PushTrigger struct {
	pubsubClient *pubsub.Client
	subName      string
	mailbox      string
	poller       Poller

	mu            sync.Mutex
	lastHistoryID uint64
}

// NewPushTrigger connects to Pub/Sub. mailbox, when set, filters
// notifications for other addresses.
func NewPushTrigger(ctx context.Context, projectID, subName, credentialsFile, mailbox string, poller Poller) (*PushTrigger, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client: %w", err)
	}

	// Accept a full resource name as well as the short subscription id
	if parts := strings.Split(subName, "/"); len(parts) > 1 {
		subName = parts[len(parts)-1]
	}

	return newPushTrigger(client, subName, mailbox, poller), nil
}

func newPushTrigger(client *pubsub.Client, subName, mailbox string, poller Poller) *PushTrigger {
	return &PushTrigger{
		pubsubClient: client,
		subName:      subName,
		mailbox:      strings.ToLower(mailbox),
		poller:       poller,
	}
}

// Start receives notifications until ctx is cancelled. A missing
// subscription disables the trigger without failing the process.
func (t *PushTrigger) Start(ctx context.Context) error {
	log.Printf("[PubSub] Starting push trigger on subscription: %s", t.subName)

	sub := t.pubsubClient.Subscription(t.subName)
	exists, err := sub.Exists(ctx)
	if err != nil {
		log.Printf("[PubSub] Error checking subscription existence: %v", err)
		return nil
	}
	if !exists {
		log.Printf("[PubSub] Subscription %s does not exist, push trigger disabled", t.subName)
		return nil
	}

	err = sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		t.handleMessage(msg.Data)
		msg.Ack()
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("[PubSub] Error receiving messages: %v", err)
	}
	log.Println("[PubSub] Push trigger stopped")
	return nil
}

// Close releases the Pub/Sub client
func (t *PushTrigger) Close() error {
	if t.pubsubClient == nil {
		return nil
	}
	return t.pubsubClient.Close()
}

// handleMessage reports whether the notification triggered a poll
func (t *PushTrigger) handleMessage(data []byte) bool {
	var notification GmailNotification
	if err := json.Unmarshal(data, &notification); err != nil {
		log.Printf("[PubSub] Failed to unmarshal notification: %v", err)
		return false
	}

	if t.mailbox != "" && strings.ToLower(notification.EmailAddress) != t.mailbox {
		log.Printf("[PubSub] Ignoring notification for %s", notification.EmailAddress)
		return false
	}

	t.mu.Lock()
	if notification.HistoryID <= t.lastHistoryID {
		t.mu.Unlock()
		log.Printf("[PubSub] Skipping duplicate notification (historyId %d <= last %d)", notification.HistoryID, t.lastHistoryID)
		return false
	}
	t.lastHistoryID = notification.HistoryID
	t.mu.Unlock()

	log.Printf("[PubSub] New mail for %s (historyId: %d), triggering poll", notification.EmailAddress, notification.HistoryID)
	t.poller.Trigger()
	return true
}
