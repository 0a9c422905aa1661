package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	emaildomain "mailagent-backend/internal/email/domain"
	emailrepo "mailagent-backend/internal/email/repository"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

var (
	// ErrPermanentFailure is returned by Ticket.Wait once a job has used up
	// its retries
	ErrPermanentFailure = errors.New("job failed permanently")
	// ErrStoreWrite wraps failures to persist an outcome
	ErrStoreWrite = errors.New("store write failed")
	// ErrStopped is returned when submitting to a stopped dispatcher
	ErrStopped = errors.New("dispatcher stopped")
	// ErrNotFailed is returned by Retry for messages that are not in the failed state
	ErrNotFailed = errors.New("message is not in failed state")
	// ErrUnknownMessage is returned by Retry for ids the ledger has never seen
	ErrUnknownMessage = errors.New("message not found")
)

// FailureAlerter is told about jobs that failed permanently
type FailureAlerter interface {
	PermanentFailure(ctx context.Context, msgID, subject string, cause error)
}

// Config tunes the worker pool
type Config struct {
	Workers    int
	MaxRetries int
	QueueSize  int
	// RatePerSecond caps agent invocations across all workers. Zero disables the cap.
	RatePerSecond float64
	Burst         int
}

// Stats is a point-in-time view of the dispatcher
type Stats struct {
	Workers   int   `json:"workers"`
	Queued    int   `json:"queued"`
	InFlight  int   `json:"in_flight"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cached    int64 `json:"cached"`
}

type work struct {
	job    Job
	ticket *Ticket
}

// Dispatcher routes jobs to agents on a bounded worker pool. Submission is
// idempotent by message id: a message that already finished answers from
// the ledger, and one still in flight shares its ticket.
type Dispatcher struct {
	ledger  emailrepo.ProcessedMessageRepository
	writer  OutcomeWriter
	agents  map[Kind]Agent
	alerter FailureAlerter
	limiter *rate.Limiter
	cfg     Config

	queue chan *work

	// ctx is handed to agents; it is canceled only when Stop gives up waiting
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	inflight   map[string]*Ticket
	started    bool
	closed     bool
	submitters sync.WaitGroup
	workerWg   sync.WaitGroup

	completed atomic.Int64
	failed    atomic.Int64
	cached    atomic.Int64
}

// New creates a dispatcher. alerter may be nil.
func New(ledger emailrepo.ProcessedMessageRepository, writer OutcomeWriter, agents map[Kind]Agent, alerter FailureAlerter, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.Workers
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		ledger:   ledger,
		writer:   writer,
		agents:   agents,
		alerter:  alerter,
		limiter:  rate.NewLimiter(limit, cfg.Burst),
		cfg:      cfg,
		queue:    make(chan *work, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		inflight: make(map[string]*Ticket),
	}
}

// Start launches the workers
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started || d.closed {
		return
	}
	for i := 0; i < d.cfg.Workers; i++ {
		d.workerWg.Add(1)
		go d.worker(i)
	}
	d.started = true
	log.Printf("[Dispatcher] Started %d workers (max retries %d)", d.cfg.Workers, d.cfg.MaxRetries)
}

// Stop refuses new submissions and waits for queued jobs to finish. If ctx
// ends first, running agents are canceled and Stop returns ctx.Err().
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	started := d.started
	d.mu.Unlock()

	d.submitters.Wait()
	close(d.queue)
	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.workerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		log.Println("[Dispatcher] All workers stopped")
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		log.Println("[Dispatcher] Workers stopped after cancellation")
		return ctx.Err()
	}
}

// Submit classifies msg and submits the resulting job
func (d *Dispatcher) Submit(ctx context.Context, msg *emaildomain.Message) (*Ticket, error) {
	return d.SubmitJob(ctx, Classify(msg))
}

// SubmitJob accepts job and returns its ticket. The returned error is nil
// only once the job is durably recorded in the ledger; callers that track
// progress must not move past a message whose submission failed. Ledger
// acceptance is serialized so concurrent duplicates share one ticket.
func (d *Dispatcher) SubmitJob(ctx context.Context, job Job) (*Ticket, error) {
	msg := job.Message()
	if msg == nil || msg.ID == "" {
		return nil, errors.New("job has no message id")
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrStopped
	}
	if t, ok := d.inflight[msg.ID]; ok {
		d.mu.Unlock()
		return t, nil
	}

	ticket := newTicket(uuid.NewString(), msg.ID, job.Kind())
	row, created, err := d.ledger.Accept(msg, string(job.Kind()), ticket.ID)
	if err != nil {
		d.mu.Unlock()
		return nil, fmt.Errorf("accept message %s: %w", msg.ID, err)
	}
	if !created {
		ticket.ID = row.TicketID
		ticket.Kind = Kind(row.Kind)
		switch row.Status {
		case emaildomain.StatusDone:
			d.mu.Unlock()
			d.cached.Add(1)
			ticket.Cached = true
			ticket.resolve(decodeResult(row.Result), nil)
			return ticket, nil
		case emaildomain.StatusFailed:
			d.mu.Unlock()
			d.cached.Add(1)
			ticket.Cached = true
			ticket.resolve(nil, fmt.Errorf("%w: %s", ErrPermanentFailure, row.LastError))
			return ticket, nil
		}
		// Pending but not in flight here: left over from an earlier run
		if job.Kind() != ticket.Kind {
			job = Rebuild(ticket.Kind, msg)
		}
		log.Printf("[Dispatcher] Resuming pending message %s (%s)", msg.ID, ticket.Kind)
	}
	d.inflight[msg.ID] = ticket
	d.submitters.Add(1)
	d.mu.Unlock()
	defer d.submitters.Done()

	select {
	case d.queue <- &work{job: job, ticket: ticket}:
		return ticket, nil
	case <-ctx.Done():
		// The ledger row stays pending; the sweeper resubmits it later
		d.forget(msg.ID)
		return nil, ctx.Err()
	}
}

// Retry re-arms a permanently failed message and submits it again
func (d *Dispatcher) Retry(ctx context.Context, msgID string) (*Ticket, error) {
	row, err := d.ledger.Get(msgID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrUnknownMessage
	}
	if row.Status != emaildomain.StatusFailed {
		return nil, ErrNotFailed
	}
	if err := d.ledger.Rearm(msgID, uuid.NewString()); err != nil {
		return nil, err
	}
	log.Printf("[Dispatcher] Re-armed failed message %s", msgID)
	return d.SubmitJob(ctx, Rebuild(Kind(row.Kind), row.ToMessage()))
}

// InFlight reports whether msgID is queued or running in this process
func (d *Dispatcher) InFlight(msgID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[msgID]
	return ok
}

// Stats returns worker pool counters
func (d *Dispatcher) Stats() Stats {
	d.mu.Lock()
	inflight := len(d.inflight)
	d.mu.Unlock()
	return Stats{
		Workers:   d.cfg.Workers,
		Queued:    len(d.queue),
		InFlight:  inflight,
		Completed: d.completed.Load(),
		Failed:    d.failed.Load(),
		Cached:    d.cached.Load(),
	}
}

func (d *Dispatcher) forget(msgID string) {
	d.mu.Lock()
	delete(d.inflight, msgID)
	d.mu.Unlock()
}

func (d *Dispatcher) worker(id int) {
	defer d.workerWg.Done()

	for w := range d.queue {
		d.process(w)
	}

	log.Printf("[Dispatcher] Worker %d stopped", id)
}

// process runs a job with up to 1+MaxRetries attempts. The ledger row is
// marked done only after every write of the outcome has succeeded.
func (d *Dispatcher) process(w *work) {
	msg := w.job.Message()

	maxAttempts := 1 + d.cfg.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := d.limiter.Wait(d.ctx); err != nil {
			lastErr = err
			break
		}

		result, err := d.attempt(w.job)
		if err == nil {
			if err = d.ledger.MarkDone(msg.ID, result.encode(), attempt); err != nil {
				err = fmt.Errorf("%w: mark done: %w", ErrStoreWrite, err)
			}
		}
		if err == nil {
			d.completed.Add(1)
			log.Printf("[Dispatcher] %s job for %s done after %d attempt(s)", w.job.Kind(), msg.ID, attempt)
			d.forget(msg.ID)
			w.ticket.resolve(result, nil)
			return
		}

		lastErr = err
		log.Printf("[Dispatcher] %s job for %s attempt %d/%d failed: %v", w.job.Kind(), msg.ID, attempt, maxAttempts, err)
		if d.ctx.Err() != nil {
			break
		}
	}

	if d.ctx.Err() != nil {
		// Shutting down: leave the row pending so the next run resumes it
		log.Printf("[Dispatcher] %s job for %s interrupted by shutdown", w.job.Kind(), msg.ID)
		d.forget(msg.ID)
		w.ticket.resolve(nil, d.ctx.Err())
		return
	}

	d.failed.Add(1)
	if err := d.ledger.MarkFailed(msg.ID, lastErr.Error(), maxAttempts); err != nil {
		log.Printf("[Dispatcher] Failed to record failure for %s: %v", msg.ID, err)
	}
	if d.alerter != nil {
		d.alerter.PermanentFailure(d.ctx, msg.ID, msg.Subject, lastErr)
	}
	d.forget(msg.ID)
	w.ticket.resolve(nil, fmt.Errorf("%w: %w", ErrPermanentFailure, lastErr))
}

func (d *Dispatcher) attempt(job Job) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent panic: %v", r)
		}
	}()

	agent, ok := d.agents[job.Kind()]
	if !ok {
		return nil, fmt.Errorf("no agent registered for %s jobs", job.Kind())
	}
	outcome, err := agent.Handle(d.ctx, job)
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		outcome = &Outcome{}
	}
	return d.writer.Apply(d.ctx, job, outcome)
}
