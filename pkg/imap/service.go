package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	emaildomain "mailagent-backend/internal/email/domain"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Config holds the IMAP account to poll
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	Mailbox  string
	// TLS dials with implicit TLS (port 993)
	TLS bool
	// RecentWindow bounds ListRecent; defaults to one day
	RecentWindow time.Duration
}

// Service is a MailProvider over IMAP. The cursor packs the mailbox
// UIDVALIDITY in the high 32 bits and the last seen UID in the low 32 bits.
type Service struct {
	cfg Config
}

// NewService creates an IMAP provider
func NewService(cfg Config) *Service {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = 24 * time.Hour
	}
	return &Service{cfg: cfg}
}

// PackCursor builds a cursor from a UIDVALIDITY and UID
func PackCursor(uidValidity, uid uint32) emaildomain.Cursor {
	return emaildomain.Cursor(uint64(uidValidity)<<32 | uint64(uid))
}

// UnpackCursor splits a cursor into UIDVALIDITY and UID
func UnpackCursor(c emaildomain.Cursor) (uidValidity, uid uint32) {
	return uint32(uint64(c) >> 32), uint32(uint64(c))
}

// GetCursor returns the position just after the newest message
func (s *Service) GetCursor(ctx context.Context) (emaildomain.Cursor, error) {
	var cursor emaildomain.Cursor
	err := s.withMailbox(ctx, func(c *client.Client, mbox *imap.MailboxStatus) error {
		last := uint32(0)
		if mbox.UidNext > 0 {
			last = mbox.UidNext - 1
		}
		cursor = PackCursor(mbox.UidValidity, last)
		return nil
	})
	return cursor, err
}

// FetchSince returns messages with a UID above the cursor, in UID order
func (s *Service) FetchSince(ctx context.Context, cursor emaildomain.Cursor) ([]*emaildomain.Message, emaildomain.Cursor, error) {
	validity, lastUID := UnpackCursor(cursor)
	next := cursor

	var messages []*emaildomain.Message
	err := s.withMailbox(ctx, func(c *client.Client, mbox *imap.MailboxStatus) error {
		if mbox.UidValidity != validity {
			return emaildomain.ErrCursorTooOld
		}
		if mbox.UidNext != 0 && mbox.UidNext <= lastUID+1 {
			return nil
		}

		seqset := new(imap.SeqSet)
		seqset.AddRange(lastUID+1, 0)

		fetched, err := s.fetch(c, seqset)
		if err != nil {
			return err
		}

		// "n:*" always matches the newest message even if its UID is below n
		for _, f := range fetched {
			if f.uid <= lastUID {
				continue
			}
			messages = append(messages, f.msg)
			if pos := PackCursor(validity, f.uid); pos.After(next) {
				next = pos
			}
		}
		return nil
	})
	if err != nil {
		return nil, cursor, err
	}
	return messages, next, nil
}

// ListRecent returns up to limit messages received within the recent
// window, oldest first
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*emaildomain.Message, error) {
	var messages []*emaildomain.Message
	err := s.withMailbox(ctx, func(c *client.Client, mbox *imap.MailboxStatus) error {
		criteria := imap.NewSearchCriteria()
		criteria.Since = time.Now().Add(-s.cfg.RecentWindow)

		uids, err := c.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("imap search: %w", err)
		}
		if len(uids) == 0 {
			return nil
		}

		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
		if limit > 0 && len(uids) > limit {
			uids = uids[len(uids)-limit:]
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)

		fetched, err := s.fetch(c, seqset)
		if err != nil {
			return err
		}
		for _, f := range fetched {
			messages = append(messages, f.msg)
		}
		return nil
	})
	return messages, err
}

type fetchedMessage struct {
	uid uint32
	msg *emaildomain.Message
}

func (s *Service) fetch(c *client.Client, seqset *imap.SeqSet) ([]fetchedMessage, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchInternalDate, section.FetchItem()}

	ch := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var out []fetchedMessage
	for m := range ch {
		out = append(out, fetchedMessage{uid: m.Uid, msg: convertMessage(m, section)})
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].uid < out[j].uid })
	return out, nil
}

// withMailbox opens a connection, selects the mailbox read-only and runs fn
func (s *Service) withMailbox(ctx context.Context, fn func(*client.Client, *imap.MailboxStatus) error) error {
	c, err := s.dial()
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Logout(); err != nil {
			log.Printf("[IMAP] Logout failed: %v", err)
		}
	}()

	// Unblock network calls when the caller gives up
	stop := context.AfterFunc(ctx, func() { _ = c.Terminate() })
	defer stop()

	if err := c.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}

	mbox, err := c.Select(s.cfg.Mailbox, true)
	if err != nil {
		return fmt.Errorf("imap select %s: %w", s.cfg.Mailbox, err)
	}
	return fn(c, mbox)
}

func (s *Service) dial() (*client.Client, error) {
	addr := s.cfg.Host + ":" + s.cfg.Port
	var (
		c   *client.Client
		err error
	)
	if s.cfg.TLS {
		c, err = client.DialTLS(addr, &tls.Config{ServerName: s.cfg.Host})
	} else {
		c, err = client.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("imap dial %s: %w", addr, err)
	}
	c.Timeout = time.Minute
	return c, nil
}

func convertMessage(m *imap.Message, section *imap.BodySectionName) *emaildomain.Message {
	msg := &emaildomain.Message{
		ID:         fmt.Sprintf("imap-%d", m.Uid),
		ReceivedAt: m.InternalDate.UTC(),
	}

	if env := m.Envelope; env != nil {
		msg.Subject = env.Subject
		if env.MessageId != "" {
			msg.ID = strings.Trim(env.MessageId, "<>")
		}
		if len(env.From) > 0 {
			msg.From = strings.ToLower(env.From[0].Address())
			msg.FromName = env.From[0].PersonalName
			if msg.FromName == "" {
				msg.FromName = msg.From
			}
		}
		for _, to := range env.To {
			msg.To = append(msg.To, strings.ToLower(to.Address()))
		}
		if msg.ReceivedAt.IsZero() {
			msg.ReceivedAt = env.Date.UTC()
		}
	}

	if literal := m.GetBody(section); literal != nil {
		body, err := readPlainText(literal)
		if err != nil {
			log.Printf("[IMAP] Failed to parse body of UID %d: %v", m.Uid, err)
		}
		msg.Body = body
	}
	return msg
}

// readPlainText returns the first text/plain part of a MIME message
func readPlainText(r io.Reader) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return "", err
	}

	var htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}

		header, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := header.ContentType()
		data, err := io.ReadAll(part.Body)
		if err != nil {
			return "", err
		}
		switch contentType {
		case "text/plain", "":
			return strings.TrimSpace(string(data)), nil
		case "text/html":
			if htmlBody == "" {
				htmlBody = string(data)
			}
		}
	}
	return strings.TrimSpace(htmlBody), nil
}
