package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mailagent-backend/internal/credential"
	"mailagent-backend/internal/dispatch"
	emaildomain "mailagent-backend/internal/email/domain"
	emailrepo "mailagent-backend/internal/email/repository"
	"mailagent-backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type batch struct {
	msgs []*emaildomain.Message
	next emaildomain.Cursor
	err  error
}

type fakeProvider struct {
	mu      sync.Mutex
	current emaildomain.Cursor
	batches []batch
	calls   []emaildomain.Cursor
}

func (p *fakeProvider) GetCursor(ctx context.Context) (emaildomain.Cursor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current, nil
}

func (p *fakeProvider) FetchSince(ctx context.Context, cursor emaildomain.Cursor) ([]*emaildomain.Message, emaildomain.Cursor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, cursor)
	if len(p.batches) == 0 {
		return nil, cursor, nil
	}
	b := p.batches[0]
	p.batches = p.batches[1:]
	if b.err != nil {
		return nil, 0, b.err
	}
	return b.msgs, b.next, nil
}

func (p *fakeProvider) ListRecent(ctx context.Context, limit int) ([]*emaildomain.Message, error) {
	return nil, nil
}

func (p *fakeProvider) fetchCalls() []emaildomain.Cursor {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]emaildomain.Cursor(nil), p.calls...)
}

type fakeSubmitter struct {
	mu        sync.Mutex
	submitted []string
	failOnce  map[string]bool
}

func (s *fakeSubmitter) Submit(ctx context.Context, msg *emaildomain.Message) (*dispatch.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOnce[msg.ID] {
		delete(s.failOnce, msg.ID)
		return nil, errors.New("ledger unavailable")
	}
	s.submitted = append(s.submitted, msg.ID)
	return nil, nil
}

func (s *fakeSubmitter) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.submitted...)
}

type expiredGuard struct{}

func (expiredGuard) Ensure(ctx context.Context) (*oauth2.Token, error) {
	return nil, fmt.Errorf("%w: refresh failed", credential.ErrCredentialExpired)
}

type recordingAlerter struct {
	mu    sync.Mutex
	count int
}

func (a *recordingAlerter) CredentialExpired(ctx context.Context, cause error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count++
}

func msgs(ids ...string) []*emaildomain.Message {
	out := make([]*emaildomain.Message, len(ids))
	for i, id := range ids {
		out[i] = &emaildomain.Message{ID: id, Subject: "s " + id}
	}
	return out
}

type fixture struct {
	provider  *fakeProvider
	submitter *fakeSubmitter
	cursors   emailrepo.CursorRepository
	listener  *Listener
}

func newFixture(t *testing.T, provider *fakeProvider, guard CredentialGuard, alerter CredentialAlerter) *fixture {
	t.Helper()
	f := &fixture{
		provider:  provider,
		submitter: &fakeSubmitter{failOnce: map[string]bool{}},
		cursors:   emailrepo.NewCursorRepository(testutil.NewDB(t)),
	}
	f.listener = New(provider, f.cursors, f.submitter, guard, alerter, Config{
		CursorName: "inbox",
		Interval:   5 * time.Millisecond,
		MaxBackoff: 20 * time.Millisecond,
	})
	return f
}

// start runs the listener and returns a function that stops it and
// returns Run's error
func (f *fixture) start(t *testing.T) func() error {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.listener.Run(ctx) }()

	stopped := false
	var result error
	stop := func() error {
		if !stopped {
			stopped = true
			cancel()
			select {
			case result = <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("listener did not stop")
			}
		}
		return result
	}
	t.Cleanup(func() { stop() })
	return stop
}

func (f *fixture) storedCursor(t *testing.T) emaildomain.Cursor {
	c, ok, err := f.cursors.Get("inbox")
	require.NoError(t, err)
	require.True(t, ok)
	return c
}

func TestListenerSubmitsInOrderThenAdvances(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		current: 100,
		batches: []batch{{msgs: msgs("a", "b", "c"), next: 105}},
	}, nil, nil)
	stop := f.start(t)

	require.Eventually(t, func() bool {
		c, ok, _ := f.cursors.Get("inbox")
		return ok && c == 105
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Equal(t, []string{"a", "b", "c"}, f.submitter.ids())
	assert.Equal(t, emaildomain.Cursor(100), f.provider.fetchCalls()[0])
	assert.Equal(t, StateStopped, f.listener.Status().State)
	assert.Equal(t, int64(3), f.listener.Status().Submitted)
}

func TestListenerResumesFromPersistedCursor(t *testing.T) {
	f := newFixture(t, &fakeProvider{current: 100}, nil, nil)
	require.NoError(t, f.cursors.Reset("inbox", 50))
	stop := f.start(t)

	require.Eventually(t, func() bool { return len(f.provider.fetchCalls()) > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())
	assert.Equal(t, emaildomain.Cursor(50), f.provider.fetchCalls()[0])
}

func TestListenerDoesNotAdvancePastRejectedSubmission(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		current: 100,
		batches: []batch{
			{msgs: msgs("a", "b", "c"), next: 105},
			{msgs: msgs("a", "b", "c"), next: 105},
		},
	}, nil, nil)
	f.submitter.failOnce["b"] = true
	stop := f.start(t)

	require.Eventually(t, func() bool {
		c, ok, _ := f.cursors.Get("inbox")
		return ok && c == 105
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	calls := f.provider.fetchCalls()
	require.GreaterOrEqual(t, len(calls), 2)
	assert.Equal(t, emaildomain.Cursor(100), calls[0])
	assert.Equal(t, emaildomain.Cursor(100), calls[1])
	assert.Equal(t, []string{"a", "a", "b", "c"}, f.submitter.ids())
}

func TestListenerBacksOffOnFetchError(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		current: 100,
		batches: []batch{
			{err: errors.New("503 backend error")},
			{msgs: msgs("a"), next: 101},
		},
	}, nil, nil)
	stop := f.start(t)

	require.Eventually(t, func() bool {
		c, ok, _ := f.cursors.Get("inbox")
		return ok && c == 101
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	calls := f.provider.fetchCalls()
	assert.Equal(t, emaildomain.Cursor(100), calls[0])
	assert.Equal(t, emaildomain.Cursor(100), calls[1])
	assert.Zero(t, f.listener.Status().ConsecutiveFailures)
}

func TestListenerRebaselinesOnStaleCursor(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		current: 500,
		batches: []batch{{err: fmt.Errorf("history: %w", emaildomain.ErrCursorTooOld)}},
	}, nil, nil)
	require.NoError(t, f.cursors.Reset("inbox", 10))
	stop := f.start(t)

	require.Eventually(t, func() bool { return len(f.provider.fetchCalls()) >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	calls := f.provider.fetchCalls()
	assert.Equal(t, emaildomain.Cursor(10), calls[0])
	assert.Equal(t, emaildomain.Cursor(500), calls[1])
	assert.Equal(t, emaildomain.Cursor(500), f.storedCursor(t))
}

func TestListenerNeverMovesCursorBackwards(t *testing.T) {
	f := newFixture(t, &fakeProvider{
		current: 100,
		batches: []batch{{msgs: msgs("a"), next: 90}},
	}, nil, nil)
	stop := f.start(t)

	require.Eventually(t, func() bool { return len(f.submitter.ids()) == 1 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())
	assert.Equal(t, emaildomain.Cursor(100), f.storedCursor(t))
}

func TestListenerStopsOnExpiredCredential(t *testing.T) {
	alerter := &recordingAlerter{}
	f := newFixture(t, &fakeProvider{current: 100}, expiredGuard{}, alerter)

	err := f.listener.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrCredentialExpired)
	assert.Equal(t, 1, alerter.count)
	assert.Equal(t, StateStopped, f.listener.Status().State)
	assert.Contains(t, f.listener.Status().LastError, "credential expired")
	assert.Empty(t, f.provider.fetchCalls())
}

func TestListenerTriggerPollsImmediately(t *testing.T) {
	f := newFixture(t, &fakeProvider{current: 100}, nil, nil)
	f.listener.cfg.Interval = time.Hour
	f.listener.cfg.MaxBackoff = time.Hour
	stop := f.start(t)

	require.Eventually(t, func() bool { return len(f.provider.fetchCalls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	f.listener.Trigger()
	require.Eventually(t, func() bool { return len(f.provider.fetchCalls()) == 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())
}

func TestBackoffDoublesUpToMax(t *testing.T) {
	l := New(nil, nil, nil, nil, nil, Config{Interval: time.Second, MaxBackoff: 5 * time.Second})

	assert.Equal(t, time.Second, l.backoff(1))
	assert.Equal(t, 2*time.Second, l.backoff(2))
	assert.Equal(t, 4*time.Second, l.backoff(3))
	assert.Equal(t, 5*time.Second, l.backoff(4))
	assert.Equal(t, 5*time.Second, l.backoff(20))
}

type blockedSubmitter struct {
	entered chan struct{}
}

func (s *blockedSubmitter) Submit(ctx context.Context, msg *emaildomain.Message) (*dispatch.Ticket, error) {
	select {
	case s.entered <- struct{}{}:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestShutdownInterruptsBlockedSubmission(t *testing.T) {
	cursors := emailrepo.NewCursorRepository(testutil.NewDB(t))
	submitter := &blockedSubmitter{entered: make(chan struct{}, 1)}
	provider := &fakeProvider{current: 100, batches: []batch{{msgs: msgs("a", "b"), next: 105}}}
	l := New(provider, cursors, submitter, nil, nil, Config{CursorName: "inbox", Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case <-submitter.entered:
	case <-time.After(time.Second):
		t.Fatal("listener never submitted")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return while a submission was blocked")
	}

	c, ok, err := cursors.Get("inbox")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, emaildomain.Cursor(100), c)
	assert.Equal(t, StateStopped, l.Status().State)
}
