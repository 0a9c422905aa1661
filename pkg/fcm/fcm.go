package fcm

import (
	"context"
	"fmt"
	"log"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// maxTokensPerBatch is the FCM multicast limit
const maxTokensPerBatch = 500

// alertTTL bounds how long FCM keeps an undelivered operator alert
const alertTTL = 6 * time.Hour

// Client pushes operator alerts through Firebase Cloud Messaging
type Client struct {
	messaging *messaging.Client
}

// NewClient creates a client from a service account file. An empty path
// falls back to application default credentials.
func NewClient(ctx context.Context, credentialsFile string) (*Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	m, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get messaging client: %w", err)
	}

	log.Println("[FCM] Client ready")
	return &Client{messaging: m}, nil
}

// Alert is one operator notification. Kind doubles as the collapse key so a
// device only shows the latest alert of each kind.
type Alert struct {
	Kind   string
	Title  string
	Body   string
	Urgent bool
	Data   map[string]string
}

// SendToDevices pushes alert to every token and returns the tokens FCM
// reported as unregistered or malformed. Other per-token failures are logged
// and the tokens kept.
func (c *Client) SendToDevices(ctx context.Context, tokens []string, alert Alert) ([]string, error) {
	var rejected []string
	for start := 0; start < len(tokens); start += maxTokensPerBatch {
		end := min(start+maxTokensPerBatch, len(tokens))
		batch := tokens[start:end]

		response, err := c.messaging.SendEachForMulticast(ctx, buildMessage(batch, alert))
		if err != nil {
			return rejected, fmt.Errorf("failed to send FCM multicast message: %w", err)
		}
		log.Printf("[FCM] %s alert sent: %d delivered, %d failed", alert.Kind, response.SuccessCount, response.FailureCount)

		for i, resp := range response.Responses {
			if resp.Success {
				continue
			}
			if messaging.IsUnregistered(resp.Error) || messaging.IsInvalidArgument(resp.Error) {
				rejected = append(rejected, batch[i])
				continue
			}
			log.Printf("[FCM] Delivery to %s failed: %v", shortToken(batch[i]), resp.Error)
		}
	}
	return rejected, nil
}

func buildMessage(tokens []string, alert Alert) *messaging.MulticastMessage {
	data := map[string]string{"type": alert.Kind}
	for k, v := range alert.Data {
		data[k] = v
	}

	priority := "normal"
	if alert.Urgent {
		priority = "high"
	}
	ttl := alertTTL

	return &messaging.MulticastMessage{
		Tokens: tokens,
		Notification: &messaging.Notification{
			Title: alert.Title,
			Body:  alert.Body,
		},
		Data: data,
		Android: &messaging.AndroidConfig{
			Priority:    priority,
			CollapseKey: alert.Kind,
			TTL:         &ttl,
		},
	}
}

func shortToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:12] + "..."
}
