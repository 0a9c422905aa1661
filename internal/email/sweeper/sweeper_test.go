package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
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

type recentProvider struct {
	msgs   []*emaildomain.Message
	err    error
	listed atomic.Int32
}

func (p *recentProvider) GetCursor(ctx context.Context) (emaildomain.Cursor, error) { return 0, nil }

func (p *recentProvider) FetchSince(ctx context.Context, c emaildomain.Cursor) ([]*emaildomain.Message, emaildomain.Cursor, error) {
	return nil, c, nil
}

func (p *recentProvider) ListRecent(ctx context.Context, limit int) ([]*emaildomain.Message, error) {
	p.listed.Add(1)
	return p.msgs, p.err
}

type noopWriter struct{}

func (noopWriter) Apply(ctx context.Context, job dispatch.Job, o *dispatch.Outcome) (*dispatch.Result, error) {
	return &dispatch.Result{Summary: "ok"}, nil
}

func newDispatcher(t *testing.T, ledger emailrepo.ProcessedMessageRepository, calls *atomic.Int32) *dispatch.Dispatcher {
	agent := dispatch.AgentFunc(func(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
		calls.Add(1)
		return &dispatch.Outcome{}, nil
	})
	agents := map[dispatch.Kind]dispatch.Agent{
		dispatch.KindSchedule: agent, dispatch.KindReschedule: agent,
		dispatch.KindFeedback: agent, dispatch.KindGeneric: agent,
	}
	d := dispatch.New(ledger, noopWriter{}, agents, nil, dispatch.Config{Workers: 2})
	d.Start()
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	return d
}

func inbox(ids ...string) []*emaildomain.Message {
	var out []*emaildomain.Message
	for _, id := range ids {
		out = append(out, &emaildomain.Message{ID: id, Subject: "Note " + id, Body: "fyi", ReceivedAt: time.Now()})
	}
	return out
}

func TestRunOnceIsIdempotent(t *testing.T) {
	ledger := emailrepo.NewProcessedMessageRepository(testutil.NewDB(t))
	var calls atomic.Int32
	d := newDispatcher(t, ledger, &calls)
	s := New(&recentProvider{msgs: inbox("a", "b")}, ledger, d, Config{Interval: time.Minute})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Listed: 2, Submitted: 2, Completed: 2}, report)

	report, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Listed: 2, Cached: 2}, report)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "Processed 2 email(s): 0 new, 2 already processed, 0 resumed, 0 failed.", report.Message())
}

func TestRunOnceResumesStalePending(t *testing.T) {
	ledger := emailrepo.NewProcessedMessageRepository(testutil.NewDB(t))
	var calls atomic.Int32
	d := newDispatcher(t, ledger, &calls)

	_, created, err := ledger.Accept(inbox("crashed")[0], string(dispatch.KindGeneric), "t-1")
	require.NoError(t, err)
	require.True(t, created)

	s := New(nil, ledger, d, Config{Interval: time.Minute})
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Resumed)
	assert.Equal(t, 1, report.Completed)

	row, err := ledger.Get("crashed")
	require.NoError(t, err)
	assert.Equal(t, emaildomain.StatusDone, row.Status)
}

func TestRunOnceContinuesAfterProviderError(t *testing.T) {
	ledger := emailrepo.NewProcessedMessageRepository(testutil.NewDB(t))
	var calls atomic.Int32
	d := newDispatcher(t, ledger, &calls)

	_, _, err := ledger.Accept(inbox("left-over")[0], string(dispatch.KindGeneric), "t-2")
	require.NoError(t, err)

	s := New(&recentProvider{err: errors.New("quota exceeded")}, ledger, d, Config{Interval: time.Minute})
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	report, err := s.RunOnce(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 1, report.Resumed)
	assert.Equal(t, 1, report.Completed)
}

func TestFreshPendingRowsAreLeftAlone(t *testing.T) {
	ledger := emailrepo.NewProcessedMessageRepository(testutil.NewDB(t))
	var calls atomic.Int32
	d := newDispatcher(t, ledger, &calls)

	_, _, err := ledger.Accept(inbox("fresh")[0], string(dispatch.KindGeneric), "t-3")
	require.NoError(t, err)

	s := New(nil, ledger, d, Config{Interval: time.Minute})
	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Resumed)
	assert.Zero(t, calls.Load())
}

type switchGuard struct {
	mu      sync.Mutex
	expired bool
}

func (g *switchGuard) Ensure(ctx context.Context) (*oauth2.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return nil, fmt.Errorf("%w: refresh already failed", credential.ErrCredentialExpired)
	}
	return &oauth2.Token{AccessToken: "ok"}, nil
}

func (g *switchGuard) set(expired bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = expired
}

func TestRunOnceSkipsListingWhileCredentialExpired(t *testing.T) {
	ledger := emailrepo.NewProcessedMessageRepository(testutil.NewDB(t))
	var calls atomic.Int32
	d := newDispatcher(t, ledger, &calls)

	_, _, err := ledger.Accept(inbox("left-over")[0], string(dispatch.KindGeneric), "t-4")
	require.NoError(t, err)

	provider := &recentProvider{msgs: inbox("a")}
	guard := &switchGuard{expired: true}
	s := New(provider, ledger, d, Config{Interval: time.Minute}, WithGuard(guard))
	s.now = func() time.Time { return time.Now().Add(time.Hour) }

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.True(t, report.SkippedListing)
	assert.Zero(t, report.Listed)
	assert.Equal(t, 1, report.Resumed)
	assert.Zero(t, provider.listed.Load())
	assert.Contains(t, report.Message(), "credential expired")

	_, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, provider.listed.Load())

	guard.set(false)
	report, err = s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, report.SkippedListing)
	assert.Equal(t, 1, report.Listed)
	assert.Equal(t, int32(1), provider.listed.Load())
}

func TestStuckTicketDoesNotBlockLaterSweeps(t *testing.T) {
	ledger := emailrepo.NewProcessedMessageRepository(testutil.NewDB(t))
	release := make(chan struct{})
	agent := dispatch.AgentFunc(func(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
		<-release
		return &dispatch.Outcome{}, nil
	})
	d := dispatch.New(ledger, noopWriter{}, map[dispatch.Kind]dispatch.Agent{dispatch.KindGeneric: agent}, nil, dispatch.Config{Workers: 1})
	d.Start()
	t.Cleanup(func() { _ = d.Stop(context.Background()) })
	t.Cleanup(func() { close(release) })

	s := New(&recentProvider{msgs: inbox("stuck")}, ledger, d, Config{Interval: time.Minute, WaitTimeout: 50 * time.Millisecond})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Submitted)
	assert.Equal(t, 1, report.Pending)
	assert.Zero(t, report.Completed)
	assert.Contains(t, report.Message(), "1 still running")

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	report, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Pending)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRunOnceGivesUpWaitingForBusySweep(t *testing.T) {
	ledger := emailrepo.NewProcessedMessageRepository(testutil.NewDB(t))
	release := make(chan struct{})
	agent := dispatch.AgentFunc(func(ctx context.Context, job dispatch.Job) (*dispatch.Outcome, error) {
		<-release
		return &dispatch.Outcome{}, nil
	})
	d := dispatch.New(ledger, noopWriter{}, map[dispatch.Kind]dispatch.Agent{dispatch.KindGeneric: agent}, nil, dispatch.Config{Workers: 1})
	d.Start()
	t.Cleanup(func() { _ = d.Stop(context.Background()) })

	s := New(&recentProvider{msgs: inbox("slow")}, ledger, d, Config{Interval: time.Minute, WaitTimeout: 10 * time.Second})

	first := make(chan Report, 1)
	go func() {
		report, _ := s.RunOnce(context.Background())
		first <- report
	}()
	require.Eventually(t, func() bool { return d.InFlight("slow") }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	select {
	case report := <-first:
		assert.Equal(t, 1, report.Completed)
	case <-time.After(2 * time.Second):
		t.Fatal("first sweep did not finish after the worker was released")
	}
}
