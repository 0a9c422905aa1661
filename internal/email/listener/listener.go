package listener

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"mailagent-backend/internal/credential"
	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	emailrepo "mailagent-backend/internal/email/repository"

	"golang.org/x/oauth2"
)

// State is the listener's position in its poll cycle
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateAdvancing State = "advancing"
	StateBackoff   State = "backoff"
	StateStopped   State = "stopped"
)

// FetchError is a transient provider failure. The cursor is left untouched
// and the poll is retried after a backoff.
type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return "fetch failed: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Submitter accepts messages for processing
type Submitter interface {
	Submit(ctx context.Context, msg *emaildomain.Message) (*dispatch.Ticket, error)
}

// CredentialGuard verifies the mail credential before each poll
type CredentialGuard interface {
	Ensure(ctx context.Context) (*oauth2.Token, error)
}

// CredentialAlerter is told when the listener stops on an expired credential
type CredentialAlerter interface {
	CredentialExpired(ctx context.Context, cause error)
}

// Config tunes the poll loop
type Config struct {
	// CursorName keys the persisted cursor, one per mailbox
	CursorName string
	Interval   time.Duration
	MaxBackoff time.Duration
}

// Status is a snapshot for the health endpoint
type Status struct {
	State               State              `json:"state"`
	Cursor              emaildomain.Cursor `json:"cursor"`
	LastPoll            time.Time          `json:"last_poll,omitempty"`
	LastError           string             `json:"last_error,omitempty"`
	ConsecutiveFailures int                `json:"consecutive_failures"`
	Submitted           int64              `json:"submitted"`
}

// Listener polls a mail provider and submits new messages in arrival order.
// The cursor is advanced only after every message of a batch has been
// accepted, so a crash mid-batch replays the batch instead of losing it.
type Listener struct {
	provider  emaildomain.MailProvider
	cursors   emailrepo.CursorRepository
	submitter Submitter
	guard     CredentialGuard
	alerter   CredentialAlerter
	cfg       Config

	trigger chan struct{}

	mu     sync.RWMutex
	status Status
}

// New creates a listener. guard and alerter may be nil.
func New(provider emaildomain.MailProvider, cursors emailrepo.CursorRepository, submitter Submitter, guard CredentialGuard, alerter CredentialAlerter, cfg Config) *Listener {
	if cfg.CursorName == "" {
		cfg.CursorName = "inbox"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	return &Listener{
		provider:  provider,
		cursors:   cursors,
		submitter: submitter,
		guard:     guard,
		alerter:   alerter,
		cfg:       cfg,
		trigger:   make(chan struct{}, 1),
		status:    Status{State: StateIdle},
	}
}

// Trigger wakes the listener for an immediate poll. Extra triggers while
// one is pending are dropped.
func (l *Listener) Trigger() {
	select {
	case l.trigger <- struct{}{}:
	default:
	}
}

// Status returns the current listener status
func (l *Listener) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.status
}

// Run polls until ctx is canceled, which returns nil, or until the
// credential can no longer be renewed, which returns an error wrapping
// credential.ErrCredentialExpired. A fetch already in progress when ctx is
// canceled runs to completion; a submission still waiting for the
// dispatcher is abandoned and the cursor stays where it was.
func (l *Listener) Run(ctx context.Context) error {
	defer l.setState(StateStopped)

	cursor, err := l.baseline(ctx)
	if err != nil {
		return l.stop(ctx, err)
	}
	if cursor == nil {
		return nil
	}
	log.Printf("[Listener] Started at cursor %d, polling every %s", *cursor, l.cfg.Interval)

	for {
		delay, err := l.poll(context.WithoutCancel(ctx), ctx, cursor)
		if err != nil {
			return l.stop(ctx, err)
		}
		if ctx.Err() != nil || !l.wait(ctx, delay) {
			log.Println("[Listener] Stopped")
			return nil
		}
	}
}

// baseline returns the persisted cursor, or captures the provider's current
// one. A nil cursor means ctx ended first.
func (l *Listener) baseline(ctx context.Context) (*emaildomain.Cursor, error) {
	stored, ok, err := l.cursors.Get(l.cfg.CursorName)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w", err)
	}
	if ok {
		l.setCursor(stored)
		return &stored, nil
	}

	for failures := 1; ; failures++ {
		if err := l.ensureCredential(ctx); err != nil {
			return nil, err
		}
		current, err := l.provider.GetCursor(ctx)
		if err == nil {
			if err := l.cursors.Reset(l.cfg.CursorName, current); err != nil {
				return nil, fmt.Errorf("persist baseline: %w", err)
			}
			log.Printf("[Listener] Captured baseline cursor %d", current)
			l.setCursor(current)
			return &current, nil
		}
		if errors.Is(err, credential.ErrCredentialExpired) {
			return nil, err
		}

		delay := l.backoff(failures)
		l.recordFailure(&FetchError{Err: err}, failures)
		log.Printf("[Listener] Baseline failed, retrying in %s: %v", delay, err)
		if !l.wait(ctx, delay) {
			return nil, nil
		}
	}
}

// poll runs one cycle and returns how long to wait before the next. A
// non-nil error is fatal. Submissions use submitCtx so shutdown can
// interrupt a dispatcher that stopped accepting work.
func (l *Listener) poll(ctx, submitCtx context.Context, cursor *emaildomain.Cursor) (time.Duration, error) {
	if err := l.ensureCredential(ctx); err != nil {
		return 0, err
	}

	l.setState(StatePolling)
	msgs, next, err := l.provider.FetchSince(ctx, *cursor)
	if err != nil {
		switch {
		case errors.Is(err, credential.ErrCredentialExpired):
			return 0, err
		case errors.Is(err, emaildomain.ErrCursorTooOld):
			return l.rebaseline(ctx, cursor)
		}
		return l.fail(&FetchError{Err: err}), nil
	}

	if len(msgs) > 0 {
		l.setState(StateAdvancing)
		for _, msg := range msgs {
			if _, err := l.submitter.Submit(submitCtx, msg); err != nil {
				// Nothing past this point is acknowledged; the batch is
				// fetched again from the same cursor
				if submitCtx.Err() != nil {
					log.Printf("[Listener] Shutdown interrupted submission of %s, cursor stays at %d", msg.ID, *cursor)
					return 0, nil
				}
				return l.fail(fmt.Errorf("submit %s: %w", msg.ID, err)), nil
			}
			l.mu.Lock()
			l.status.Submitted++
			l.mu.Unlock()
		}
		log.Printf("[Listener] Submitted %d message(s)", len(msgs))
	}

	if next > *cursor {
		stored, err := l.cursors.Advance(l.cfg.CursorName, next)
		if err != nil {
			return l.fail(fmt.Errorf("advance cursor: %w", err)), nil
		}
		*cursor = stored
	}

	l.mu.Lock()
	l.status.State = StateIdle
	l.status.Cursor = *cursor
	l.status.LastPoll = time.Now()
	l.status.LastError = ""
	l.status.ConsecutiveFailures = 0
	l.mu.Unlock()
	return l.cfg.Interval, nil
}

// rebaseline restarts from the provider's current cursor after it dropped
// the history behind ours. Mail in the gap is picked up by the sweeper.
func (l *Listener) rebaseline(ctx context.Context, cursor *emaildomain.Cursor) (time.Duration, error) {
	current, err := l.provider.GetCursor(ctx)
	if err != nil {
		if errors.Is(err, credential.ErrCredentialExpired) {
			return 0, err
		}
		return l.fail(&FetchError{Err: err}), nil
	}
	if err := l.cursors.Reset(l.cfg.CursorName, current); err != nil {
		return l.fail(fmt.Errorf("reset cursor: %w", err)), nil
	}
	log.Printf("[Listener] Cursor %d is no longer available upstream, rebaselined to %d", *cursor, current)
	*cursor = current
	l.setCursor(current)
	l.setState(StateIdle)
	return l.cfg.Interval, nil
}

func (l *Listener) ensureCredential(ctx context.Context) error {
	if l.guard == nil {
		return nil
	}
	_, err := l.guard.Ensure(ctx)
	return err
}

// fail records a transient error and returns the backoff delay
func (l *Listener) fail(err error) time.Duration {
	l.mu.Lock()
	l.status.ConsecutiveFailures++
	failures := l.status.ConsecutiveFailures
	l.mu.Unlock()

	delay := l.backoff(failures)
	l.recordFailure(err, failures)
	log.Printf("[Listener] Poll failed (%d in a row), backing off %s: %v", failures, delay, err)
	return delay
}

func (l *Listener) recordFailure(err error, failures int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.State = StateBackoff
	l.status.LastError = err.Error()
	l.status.ConsecutiveFailures = failures
}

// backoff doubles the interval per consecutive failure up to MaxBackoff
func (l *Listener) backoff(failures int) time.Duration {
	delay := l.cfg.Interval
	for i := 1; i < failures && delay < l.cfg.MaxBackoff; i++ {
		delay *= 2
	}
	if delay > l.cfg.MaxBackoff {
		delay = l.cfg.MaxBackoff
	}
	return delay
}

// wait sleeps for d or until triggered; false means ctx ended
func (l *Listener) wait(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	case <-l.trigger:
		return true
	}
}

func (l *Listener) stop(ctx context.Context, err error) error {
	l.mu.Lock()
	l.status.LastError = err.Error()
	l.mu.Unlock()

	log.Printf("[Listener] Stopping: %v", err)
	if l.alerter != nil && errors.Is(err, credential.ErrCredentialExpired) {
		l.alerter.CredentialExpired(context.WithoutCancel(ctx), err)
	}
	return fmt.Errorf("listener stopped: %w", err)
}

func (l *Listener) setState(state State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.State = state
}

func (l *Listener) setCursor(cursor emaildomain.Cursor) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status.Cursor = cursor
}
