package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"mailagent-backend/internal/credential"
	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	emailrepo "mailagent-backend/internal/email/repository"

	"golang.org/x/oauth2"
)

// ErrBusy is returned when a sweep is already running and ctx ends before
// it finishes
var ErrBusy = errors.New("a sweep is already running")

// CredentialGuard reports whether the provider's credential is usable
type CredentialGuard interface {
	Ensure(ctx context.Context) (*oauth2.Token, error)
}

// Submitter accepts messages for processing
type Submitter interface {
	Submit(ctx context.Context, msg *emaildomain.Message) (*dispatch.Ticket, error)
	InFlight(msgID string) bool
}

// Config tunes the sweep
type Config struct {
	Interval time.Duration
	// Limit caps how many recent messages and stale rows one sweep handles
	Limit int
	// StaleAfter is how long a pending ledger row may sit untouched before
	// it is resubmitted
	StaleAfter time.Duration
	// WaitTimeout bounds how long one sweep waits for its tickets. Tickets
	// still running afterwards are reported as pending.
	WaitTimeout time.Duration
}

// Report summarizes one sweep
type Report struct {
	Listed    int `json:"listed"`
	Submitted int `json:"submitted"`
	Cached    int `json:"cached"`
	Resumed   int `json:"resumed"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Pending   int `json:"pending"`
	// SkippedListing is set when the credential was expired and only
	// ledger rows were swept
	SkippedListing bool `json:"skipped_listing,omitempty"`
}

// Message renders the report for the API
func (r Report) Message() string {
	msg := fmt.Sprintf("Processed %d email(s): %d new, %d already processed, %d resumed, %d failed.",
		r.Listed, r.Submitted, r.Cached, r.Resumed, r.Failed)
	if r.Pending > 0 {
		msg += fmt.Sprintf(" %d still running.", r.Pending)
	}
	if r.SkippedListing {
		msg += " Inbox not listed: mail credential expired."
	}
	return msg
}

// Sweeper is the periodic backstop next to the listener. It resubmits
// recent inbox mail and ledger rows left pending by a crash; submissions
// are idempotent, so overlap with the listener is harmless.
type Sweeper struct {
	provider  emaildomain.MailProvider
	ledger    emailrepo.ProcessedMessageRepository
	submitter Submitter
	guard     CredentialGuard
	cfg       Config
	now       func() time.Time

	// slot serializes the periodic sweep and on-demand sweeps
	slot chan struct{}

	credentialDown bool
}

// Option configures a Sweeper
type Option func(*Sweeper)

// WithGuard skips the inbox listing while guard reports an expired
// credential. Stale ledger rows are still resumed.
func WithGuard(guard CredentialGuard) Option {
	return func(s *Sweeper) { s.guard = guard }
}

// New creates a sweeper. provider may be nil, in which case only stale
// ledger rows are swept.
func New(provider emaildomain.MailProvider, ledger emailrepo.ProcessedMessageRepository, submitter Submitter, cfg Config, opts ...Option) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 50
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = cfg.Interval
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = time.Minute
	}
	s := &Sweeper{
		provider:  provider,
		ledger:    ledger,
		submitter: submitter,
		cfg:       cfg,
		now:       time.Now,
		slot:      make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps once immediately and then every interval until ctx is canceled
func (s *Sweeper) Run(ctx context.Context) error {
	log.Printf("[Sweeper] Starting periodic sweep (interval: %s)", s.cfg.Interval)

	s.sweep(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-ctx.Done():
			log.Println("[Sweeper] Sweeper stopped")
			return nil
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	report, err := s.RunOnce(ctx)
	if err != nil {
		log.Printf("[Sweeper] Sweep finished with errors: %v", err)
	}
	if report.Listed > 0 || report.Resumed > 0 {
		log.Printf("[Sweeper] %s", report.Message())
	}
}

// RunOnce sweeps and waits up to WaitTimeout for the submitted work. Errors
// from individual steps are joined; the report covers whatever did succeed.
// Only one sweep runs at a time; a caller whose ctx ends while waiting for
// its turn gets ErrBusy.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	select {
	case s.slot <- struct{}{}:
	case <-ctx.Done():
		return Report{}, fmt.Errorf("%w: %v", ErrBusy, ctx.Err())
	}
	defer func() { <-s.slot }()

	var report Report
	var errs []error
	var tickets []*dispatch.Ticket

	if s.provider != nil && s.credentialUsable(ctx) {
		msgs, err := s.provider.ListRecent(ctx, s.cfg.Limit)
		if err != nil {
			errs = append(errs, fmt.Errorf("list recent: %w", err))
		}
		report.Listed = len(msgs)
		for _, msg := range msgs {
			ticket, err := s.submitter.Submit(ctx, msg)
			if err != nil {
				errs = append(errs, fmt.Errorf("submit %s: %w", msg.ID, err))
				continue
			}
			if ticket.Cached {
				report.Cached++
				continue
			}
			report.Submitted++
			tickets = append(tickets, ticket)
		}
	} else if s.provider != nil {
		report.SkippedListing = true
	}

	stale, err := s.ledger.ListStalePending(s.now().Add(-s.cfg.StaleAfter), s.cfg.Limit)
	if err != nil {
		errs = append(errs, fmt.Errorf("list stale: %w", err))
	}
	for _, row := range stale {
		if s.submitter.InFlight(row.MsgID) {
			continue
		}
		ticket, err := s.submitter.Submit(ctx, row.ToMessage())
		if err != nil {
			errs = append(errs, fmt.Errorf("resubmit %s: %w", row.MsgID, err))
			continue
		}
		report.Resumed++
		tickets = append(tickets, ticket)
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.WaitTimeout)
	defer cancel()
	for i, ticket := range tickets {
		if _, err := ticket.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				errs = append(errs, ctx.Err())
				report.Pending += len(tickets) - i
				break
			}
			if waitCtx.Err() != nil {
				report.Pending += len(tickets) - i
				log.Printf("[Sweeper] %d ticket(s) still running after %s", len(tickets)-i, s.cfg.WaitTimeout)
				break
			}
			report.Failed++
			continue
		}
		report.Completed++
	}

	return report, errors.Join(errs...)
}

// credentialUsable reports whether the inbox may be listed. An expired
// credential is checked locally by the guard and never retried here.
func (s *Sweeper) credentialUsable(ctx context.Context) bool {
	if s.guard == nil {
		return true
	}
	_, err := s.guard.Ensure(ctx)
	switch {
	case err == nil:
		if s.credentialDown {
			log.Println("[Sweeper] Mail credential usable again, listing inbox")
		}
		s.credentialDown = false
		return true
	case errors.Is(err, credential.ErrCredentialExpired):
		if !s.credentialDown {
			log.Printf("[Sweeper] Skipping inbox listing until re-authorization: %v", err)
		}
		s.credentialDown = true
		return false
	default:
		return true
	}
}
