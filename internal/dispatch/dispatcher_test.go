package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	emaildomain "mailagent-backend/internal/email/domain"
	emailrepo "mailagent-backend/internal/email/repository"
	"mailagent-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAlerter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeAlerter) PermanentFailure(ctx context.Context, msgID, subject string, cause error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgID)
}

func (f *fakeAlerter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// summaryWriter records outcomes without touching the store
type summaryWriter struct {
	failures atomic.Int32
	applied  atomic.Int32
}

func (w *summaryWriter) Apply(ctx context.Context, job Job, o *Outcome) (*Result, error) {
	if w.failures.Load() > 0 {
		w.failures.Add(-1)
		return nil, fmt.Errorf("%w: disk full", ErrStoreWrite)
	}
	w.applied.Add(1)
	return &Result{Summary: o.Summary}, nil
}

type failSwitch struct {
	mu  sync.Mutex
	err error
}

func (f *failSwitch) set(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *failSwitch) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func countingAgent(calls *atomic.Int32, failure *failSwitch) Agent {
	return AgentFunc(func(ctx context.Context, job Job) (*Outcome, error) {
		calls.Add(1)
		if err := failure.get(); err != nil {
			return nil, err
		}
		return &Outcome{Summary: "handled " + job.Message().ID}, nil
	})
}

type harness struct {
	d       *Dispatcher
	ledger  emailrepo.ProcessedMessageRepository
	writer  *summaryWriter
	alerter *fakeAlerter
	calls   *atomic.Int32
	failure *failSwitch
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	h := &harness{
		ledger:  emailrepo.NewProcessedMessageRepository(db),
		writer:  &summaryWriter{},
		alerter: &fakeAlerter{},
		calls:   &atomic.Int32{},
		failure: &failSwitch{},
	}
	agent := countingAgent(h.calls, h.failure)
	agents := map[Kind]Agent{KindSchedule: agent, KindReschedule: agent, KindFeedback: agent, KindGeneric: agent}
	h.d = New(h.ledger, h.writer, agents, h.alerter, cfg)
	h.d.Start()
	t.Cleanup(func() { _ = h.d.Stop(context.Background()) })
	return h
}

func (h *harness) fail(err error) {
	h.failure.set(err)
}

func newMessage(id string) *emaildomain.Message {
	return &emaildomain.Message{ID: id, Subject: "Invoice " + id, From: "alice@example.com", Body: "FYI the invoice is attached", ReceivedAt: time.Now()}
}

func waitTicket(t *testing.T, ticket *Ticket) (*Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := ticket.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return res, err
}

func TestSubmitIsIdempotent(t *testing.T) {
	h := newHarness(t, Config{Workers: 2})
	ctx := context.Background()

	first, err := h.d.Submit(ctx, newMessage("msg-1"))
	require.NoError(t, err)
	res, err := waitTicket(t, first)
	require.NoError(t, err)
	assert.Equal(t, "handled msg-1", res.Summary)
	assert.False(t, first.Cached)

	second, err := h.d.Submit(ctx, newMessage("msg-1"))
	require.NoError(t, err)
	res, err = waitTicket(t, second)
	require.NoError(t, err)

	assert.True(t, second.Cached)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "handled msg-1", res.Summary)
	assert.Equal(t, int32(1), h.calls.Load())
	assert.Equal(t, int32(1), h.writer.applied.Load())

	row, err := h.ledger.Get("msg-1")
	require.NoError(t, err)
	assert.Equal(t, emaildomain.StatusDone, row.Status)
	assert.Equal(t, 1, row.Attempts)
}

func TestConcurrentDuplicatesShareTicket(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := emailrepo.NewProcessedMessageRepository(db)
	release := make(chan struct{})
	var calls atomic.Int32
	agent := AgentFunc(func(ctx context.Context, job Job) (*Outcome, error) {
		calls.Add(1)
		<-release
		return &Outcome{Summary: "ok"}, nil
	})
	d := New(ledger, &summaryWriter{}, map[Kind]Agent{KindGeneric: agent}, nil, Config{Workers: 4})
	d.Start()
	defer d.Stop(context.Background())

	ctx := context.Background()
	var wg sync.WaitGroup
	tickets := make([]*Ticket, 8)
	for i := range tickets {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ticket, err := d.Submit(ctx, newMessage("dup"))
			assert.NoError(t, err)
			tickets[i] = ticket
		}(i)
	}
	wg.Wait()

	for _, ticket := range tickets[1:] {
		assert.Same(t, tickets[0], ticket)
	}
	assert.True(t, d.InFlight("dup"))

	close(release)
	_, err := waitTicket(t, tickets[0])
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetryBound(t *testing.T) {
	h := newHarness(t, Config{Workers: 1, MaxRetries: 2})
	h.fail(errors.New("model unavailable"))

	ticket, err := h.d.Submit(context.Background(), newMessage("msg-fail"))
	require.NoError(t, err)
	_, err = waitTicket(t, ticket)

	require.ErrorIs(t, err, ErrPermanentFailure)
	assert.Contains(t, err.Error(), "model unavailable")
	assert.Equal(t, int32(3), h.calls.Load())
	assert.Equal(t, 1, h.alerter.count())

	row, err := h.ledger.Get("msg-fail")
	require.NoError(t, err)
	assert.Equal(t, emaildomain.StatusFailed, row.Status)
	assert.Equal(t, 3, row.Attempts)
	assert.Contains(t, row.LastError, "model unavailable")

	// Failed messages are not retried automatically
	again, err := h.d.Submit(context.Background(), newMessage("msg-fail"))
	require.NoError(t, err)
	_, err = waitTicket(t, again)
	assert.ErrorIs(t, err, ErrPermanentFailure)
	assert.True(t, again.Cached)
	assert.Equal(t, int32(3), h.calls.Load())
}

func TestStoreWriteFailureIsRetried(t *testing.T) {
	h := newHarness(t, Config{Workers: 1, MaxRetries: 1})
	h.writer.failures.Store(1)

	ticket, err := h.d.Submit(context.Background(), newMessage("msg-write"))
	require.NoError(t, err)
	_, err = waitTicket(t, ticket)
	require.NoError(t, err)

	row, err := h.ledger.Get("msg-write")
	require.NoError(t, err)
	assert.Equal(t, emaildomain.StatusDone, row.Status)
	assert.Equal(t, 2, row.Attempts)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestRetryRearmsFailedMessage(t *testing.T) {
	h := newHarness(t, Config{Workers: 1})
	ctx := context.Background()
	h.fail(errors.New("boom"))

	ticket, err := h.d.Submit(ctx, newMessage("msg-retry"))
	require.NoError(t, err)
	_, err = waitTicket(t, ticket)
	require.ErrorIs(t, err, ErrPermanentFailure)

	_, err = h.d.Retry(ctx, "msg-unknown")
	assert.ErrorIs(t, err, ErrUnknownMessage)

	h.fail(nil)
	retried, err := h.d.Retry(ctx, "msg-retry")
	require.NoError(t, err)
	res, err := waitTicket(t, retried)
	require.NoError(t, err)
	assert.Equal(t, "handled msg-retry", res.Summary)

	_, err = h.d.Retry(ctx, "msg-retry")
	assert.ErrorIs(t, err, ErrNotFailed)
}

func TestPendingRowFromEarlierRunIsResumed(t *testing.T) {
	h := newHarness(t, Config{Workers: 1})
	msg := newMessage("msg-crash")

	_, created, err := h.ledger.Accept(msg, string(KindGeneric), "old-ticket")
	require.NoError(t, err)
	require.True(t, created)

	ticket, err := h.d.Submit(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, "old-ticket", ticket.ID)

	_, err = waitTicket(t, ticket)
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.calls.Load())

	row, err := h.ledger.Get("msg-crash")
	require.NoError(t, err)
	assert.Equal(t, emaildomain.StatusDone, row.Status)
}

func TestStopDrainsQueue(t *testing.T) {
	db := testutil.NewDB(t)
	ledger := emailrepo.NewProcessedMessageRepository(db)
	agent := AgentFunc(func(ctx context.Context, job Job) (*Outcome, error) {
		time.Sleep(10 * time.Millisecond)
		return &Outcome{Summary: "ok"}, nil
	})
	d := New(ledger, &summaryWriter{}, map[Kind]Agent{KindGeneric: agent}, nil, Config{Workers: 1})
	d.Start()

	var tickets []*Ticket
	for i := 0; i < 5; i++ {
		ticket, err := d.Submit(context.Background(), newMessage(fmt.Sprintf("drain-%d", i)))
		require.NoError(t, err)
		tickets = append(tickets, ticket)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	for _, ticket := range tickets {
		select {
		case <-ticket.Done():
		default:
			t.Fatalf("ticket %s not resolved after Stop", ticket.MsgID)
		}
	}
	assert.Equal(t, int64(5), d.Stats().Completed)

	_, err := d.Submit(context.Background(), newMessage("late"))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestMissingAgentFailsPermanently(t *testing.T) {
	db := testutil.NewDB(t)
	d := New(emailrepo.NewProcessedMessageRepository(db), &summaryWriter{}, map[Kind]Agent{}, nil, Config{Workers: 1})
	d.Start()
	defer d.Stop(context.Background())

	ticket, err := d.Submit(context.Background(), newMessage("orphan"))
	require.NoError(t, err)
	_, err = waitTicket(t, ticket)
	assert.ErrorIs(t, err, ErrPermanentFailure)
}
