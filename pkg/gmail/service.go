package gmail

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	emaildomain "mailagent-backend/internal/email/domain"

	"golang.org/x/net/html"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	userID       = "me"
	historyLimit = 500
)

// Service is a MailProvider backed by the Gmail API. The cursor is the
// mailbox historyId.
type Service struct {
	srv   *gmail.Service
	label string
	query string
}

// NewService creates a Gmail provider. Every request asks source for a token,
// so passing the credential guard routes all calls through it.
func NewService(ctx context.Context, source oauth2.TokenSource, label, query string) (*Service, error) {
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: source,
			Base:   http.DefaultTransport,
		},
	}
	return NewServiceWithOptions(ctx, label, query, option.WithHTTPClient(client))
}

// NewServiceWithOptions creates a Gmail provider with explicit client options
func NewServiceWithOptions(ctx context.Context, label, query string, opts ...option.ClientOption) (*Service, error) {
	srv, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Gmail service: %w", err)
	}
	if label == "" {
		label = "INBOX"
	}
	return &Service{srv: srv, label: label, query: query}, nil
}

// GetCursor returns the mailbox's current historyId
func (s *Service) GetCursor(ctx context.Context) (emaildomain.Cursor, error) {
	profile, err := s.srv.Users.GetProfile(userID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("unable to get profile: %w", err)
	}
	return emaildomain.Cursor(profile.HistoryId), nil
}

// FetchSince returns messages added to the label after cursor, in the order
// Gmail recorded them
func (s *Service) FetchSince(ctx context.Context, cursor emaildomain.Cursor) ([]*emaildomain.Message, emaildomain.Cursor, error) {
	next := cursor
	seen := make(map[string]bool)
	var ids []string

	call := s.srv.Users.History.List(userID).
		StartHistoryId(uint64(cursor)).
		HistoryTypes("messageAdded").
		LabelId(s.label).
		MaxResults(historyLimit)

	err := call.Pages(ctx, func(resp *gmail.ListHistoryResponse) error {
		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil || seen[added.Message.Id] {
					continue
				}
				seen[added.Message.Id] = true
				ids = append(ids, added.Message.Id)
			}
		}
		if c := emaildomain.Cursor(resp.HistoryId); c.After(next) {
			next = c
		}
		return nil
	})
	if err != nil {
		if isNotFound(err) {
			return nil, cursor, emaildomain.ErrCursorTooOld
		}
		return nil, cursor, fmt.Errorf("unable to list history: %w", err)
	}

	messages, err := s.getMessages(ctx, ids)
	if err != nil {
		return nil, cursor, err
	}
	return messages, next, nil
}

// ListRecent returns up to limit messages matching the configured query,
// oldest first
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*emaildomain.Message, error) {
	call := s.srv.Users.Messages.List(userID).LabelIds(s.label).MaxResults(int64(limit))
	if s.query != "" {
		call = call.Q(s.query)
	}

	resp, err := call.Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to list messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}

	messages, err := s.getMessages(ctx, ids)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].ReceivedAt.Before(messages[j].ReceivedAt)
	})
	return messages, nil
}

// Watch (re)starts push notifications for the label on a Pub/Sub topic
func (s *Service) Watch(ctx context.Context, topicName string) (emaildomain.Cursor, time.Time, error) {
	// Only one watch is allowed per mailbox
	_ = s.srv.Users.Stop(userID).Context(ctx).Do()

	resp, err := s.srv.Users.Watch(userID, &gmail.WatchRequest{
		TopicName: topicName,
		LabelIds:  []string{s.label},
	}).Context(ctx).Do()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("unable to watch mailbox: %w", err)
	}

	expires := time.UnixMilli(resp.Expiration)
	log.Printf("[Gmail] Watch started on %s, historyId %d, expires %s", topicName, resp.HistoryId, expires.Format(time.RFC3339))
	return emaildomain.Cursor(resp.HistoryId), expires, nil
}

// getMessages fetches full messages in order. Messages deleted since they
// were listed are skipped.
func (s *Service) getMessages(ctx context.Context, ids []string) ([]*emaildomain.Message, error) {
	messages := make([]*emaildomain.Message, 0, len(ids))
	for _, id := range ids {
		msg, err := s.srv.Users.Messages.Get(userID, id).Format("full").Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				log.Printf("[Gmail] Message %s no longer exists, skipping", id)
				continue
			}
			return nil, fmt.Errorf("unable to get message %s: %w", id, err)
		}
		messages = append(messages, convertGmailMessage(msg))
	}
	return messages, nil
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}

// Helper functions

func convertGmailMessage(msg *gmail.Message) *emaildomain.Message {
	var headers []*gmail.MessagePartHeader
	if msg.Payload != nil {
		headers = msg.Payload.Headers
	}

	from := getHeader(headers, "From")
	fromName, fromAddr := splitAddress(from)

	var to []string
	if toHeader := getHeader(headers, "To"); toHeader != "" {
		for _, addr := range strings.Split(toHeader, ",") {
			if _, a := splitAddress(addr); a != "" {
				to = append(to, a)
			}
		}
	}

	body := ""
	if msg.Payload != nil {
		var isHTML bool
		body, isHTML = getEmailBody(msg.Payload)
		if isHTML {
			body = stripHTML(body)
		}
	}
	if body == "" {
		body = msg.Snippet
	}

	return &emaildomain.Message{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		Subject:    getHeader(headers, "Subject"),
		From:       fromAddr,
		FromName:   fromName,
		To:         to,
		Body:       strings.TrimSpace(body),
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}
}

// splitAddress splits "Name <email@example.com>" into its parts
func splitAddress(value string) (name, addr string) {
	value = strings.TrimSpace(value)
	start := strings.Index(value, "<")
	end := strings.LastIndex(value, ">")
	if start >= 0 && end > start {
		addr = strings.TrimSpace(value[start+1 : end])
		name = strings.Trim(strings.TrimSpace(value[:start]), `"`)
		if name == "" {
			name = addr
		}
		return name, strings.ToLower(addr)
	}
	return value, strings.ToLower(value)
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, header := range headers {
		if strings.EqualFold(header.Name, name) {
			return header.Value
		}
	}
	return ""
}

func getEmailBody(payload *gmail.MessagePart) (string, bool) {
	// If the payload itself is the body
	if payload.Body != nil && payload.Body.Data != "" {
		if data, ok := decodeBody(payload.Body.Data); ok {
			return data, payload.MimeType == "text/html"
		}
	}

	var htmlBody string
	var plainBody string

	var findBody func(parts []*gmail.MessagePart)
	findBody = func(parts []*gmail.MessagePart) {
		for _, part := range parts {
			if part.Body != nil && part.Body.Data != "" {
				switch part.MimeType {
				case "text/plain":
					if data, ok := decodeBody(part.Body.Data); ok && plainBody == "" {
						plainBody = data
					}
				case "text/html":
					if data, ok := decodeBody(part.Body.Data); ok && htmlBody == "" {
						htmlBody = data
					}
				}
			}
			if len(part.Parts) > 0 {
				findBody(part.Parts)
			}
		}
	}

	findBody(payload.Parts)

	// Agents read text, so plain wins over HTML
	if plainBody != "" {
		return plainBody, false
	}
	return htmlBody, htmlBody != ""
}

func decodeBody(data string) (string, bool) {
	if decoded, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(decoded), true
	}
	if decoded, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(decoded), true
	}
	return "", false
}

// stripHTML returns the visible text of an HTML body with entities decoded.
// Script, style and head content is dropped.
func stripHTML(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return strings.Join(strings.Fields(html.UnescapeString(body)), " ")
	}

	var words []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "head", "noscript", "template":
				return
			}
		}
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(words, " ")
}
