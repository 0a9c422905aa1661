package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrCredentialExpired means the credential is unusable and no automatic
	// recovery is possible. An operator must re-authorize.
	ErrCredentialExpired = errors.New("credential expired")

	// ErrNoCredential is returned by a Store that holds nothing yet
	ErrNoCredential = errors.New("no stored credential")
)

// defaultSkew treats tokens this close to expiry as already expired
const defaultSkew = 10 * time.Second

// Store loads and persists the OAuth token
type Store interface {
	Load() (*oauth2.Token, error)
	Persist(token *oauth2.Token) error
}

// Refresher exchanges a refresh token for a fresh access token
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// State summarizes the credential for health reporting
type State string

const (
	StateUnknown State = "unknown"
	StateValid   State = "valid"
	StateExpired State = "expired"
)

// Status is a point-in-time view of the guard
type Status struct {
	State       State     `json:"state"`
	Expiry      time.Time `json:"expiry,omitempty"`
	LastRefresh time.Time `json:"last_refresh,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Guard owns one OAuth credential. Every privileged call goes through
// Ensure, which checks validity locally and performs at most one refresh
// per refresh token.
type Guard struct {
	store     Store
	refresher Refresher
	skew      time.Duration
	now       func() time.Time

	mu          sync.Mutex
	token       *oauth2.Token
	state       State
	lastErr     error
	lastRefresh time.Time
	// refresh token whose refresh already failed; never retried
	failedRefresh string
}

// Option configures a Guard
type Option func(*Guard)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// WithSkew overrides how early a token is considered expired
func WithSkew(skew time.Duration) Option {
	return func(g *Guard) { g.skew = skew }
}

// NewGuard creates a Guard over store and refresher
func NewGuard(store Store, refresher Refresher, opts ...Option) *Guard {
	g := &Guard{
		store:     store,
		refresher: refresher,
		skew:      defaultSkew,
		now:       time.Now,
		state:     StateUnknown,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Ensure returns a token that is valid right now, refreshing it first if
// needed. Any failure is reported as ErrCredentialExpired.
func (g *Guard) Ensure(ctx context.Context) (*oauth2.Token, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// After a failure the store is re-read so a manual re-authorization
	// is picked up without a restart
	if g.token == nil || g.state == StateExpired {
		token, err := g.store.Load()
		if err != nil {
			if errors.Is(err, ErrNoCredential) {
				return nil, g.expire(fmt.Errorf("%w: no stored token, authorization required", ErrCredentialExpired))
			}
			return nil, g.expire(fmt.Errorf("%w: load token: %v", ErrCredentialExpired, err))
		}
		g.token = token
	}

	if g.valid(g.token) {
		g.state = StateValid
		g.lastErr = nil
		return g.token, nil
	}

	if g.token.RefreshToken == "" {
		return nil, g.expire(fmt.Errorf("%w: token expired and no refresh token is available", ErrCredentialExpired))
	}
	if g.token.RefreshToken == g.failedRefresh {
		return nil, g.expire(fmt.Errorf("%w: refresh already failed, re-authorization required", ErrCredentialExpired))
	}

	log.Printf("[Credential] Access token expires at %s, refreshing", g.token.Expiry.Format(time.RFC3339))

	refreshed, err := g.refresher.Refresh(ctx, g.token.RefreshToken)
	if err != nil {
		g.failedRefresh = g.token.RefreshToken
		return nil, g.expire(fmt.Errorf("%w: refresh failed: %v", ErrCredentialExpired, err))
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = g.token.RefreshToken
	}
	if !g.valid(refreshed) {
		g.failedRefresh = g.token.RefreshToken
		return nil, g.expire(fmt.Errorf("%w: refresh returned an unusable token", ErrCredentialExpired))
	}

	if err := g.store.Persist(refreshed); err != nil {
		// The refreshed token is still usable for this process
		log.Printf("[Credential] Failed to persist refreshed token: %v", err)
	}

	g.token = refreshed
	g.state = StateValid
	g.lastErr = nil
	g.lastRefresh = g.now()
	log.Printf("[Credential] Token refreshed, valid until %s", refreshed.Expiry.Format(time.RFC3339))
	return refreshed, nil
}

// Token implements oauth2.TokenSource
func (g *Guard) Token() (*oauth2.Token, error) {
	return g.Ensure(context.Background())
}

// Status reports the current credential state
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := Status{
		State:       g.state,
		LastRefresh: g.lastRefresh,
	}
	if g.token != nil {
		status.Expiry = g.token.Expiry
	}
	if g.lastErr != nil {
		status.LastError = g.lastErr.Error()
	}
	return status
}

// valid is a local check only. A token without expiry never expires.
func (g *Guard) valid(token *oauth2.Token) bool {
	if token == nil || token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return g.now().Add(g.skew).Before(token.Expiry)
}

func (g *Guard) expire(err error) error {
	if g.state != StateExpired {
		log.Printf("[Credential] %v", err)
	}
	g.state = StateExpired
	g.lastErr = err
	return err
}
