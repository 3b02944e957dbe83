package session

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"storefront/internal/logger"
)

// State is the authentication state of a Guard.
type State int

const (
	Unknown State = iota
	Unauthenticated
	Authenticated
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// NoticeSessionExpired is surfaced after a credential is purged for being
// expired, revoked or not revalidated.
const NoticeSessionExpired = "Your session has expired. Please sign in again."

var (
	// ErrUnauthorized is returned by an Authenticator when the backend answers 401 or 403.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput rejects malformed login fields before any network call.
	ErrInvalidInput = errors.New("invalid email or password")
	// ErrSuperseded is returned by Login when Start, Logout or
	// HandleUnauthorized ran while it was in flight.
	ErrSuperseded = errors.New("login superseded by a newer session transition")
)

// Authenticator is the backend the guard talks to.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Credential, error)
	Profile(ctx context.Context, token string) (Principal, error)
}

// Transition is delivered to listeners on every state change.
type Transition struct {
	From      State
	To        State
	Principal Principal
	Notice    string
}

// Listener observes guard transitions.
type Listener func(Transition)

// Guard answers whether a valid session exists and owns every write to the
// persisted credential.
type Guard struct {
	mu         sync.Mutex
	creds      *CredentialStore
	auth       Authenticator
	logger     *zap.Logger
	now        func() time.Time
	timeout    time.Duration
	state      State
	principal  Principal
	notice     string
	generation uint64
	listeners  map[uint64]Listener
	nextID     uint64
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

func WithGuardLogger(l *zap.Logger) GuardOption {
	return func(g *Guard) { g.logger = l }
}

// WithRevalidationTimeout bounds the profile call made by Start.
func WithRevalidationTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) { g.now = now }
}

func NewGuard(creds *CredentialStore, auth Authenticator, opts ...GuardOption) *Guard {
	g := &Guard{
		creds:     creds,
		auth:      auth,
		now:       time.Now,
		timeout:   10 * time.Second,
		listeners: make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logger.OrNop(g.logger)
	return g
}

// Start decides the initial state: local validity check first, then a profile
// revalidation. Any failure purges the credential. A revalidation result that
// arrives after a Logout or Login is dropped.
func (g *Guard) Start(ctx context.Context) State {
	g.mu.Lock()
	g.generation++
	gen := g.generation

	cred, ok, err := g.creds.Load(ctx)
	if err != nil {
		g.logger.Warn("credential load failed", zap.Error(err))
	}
	if !ok {
		return g.transitionLocked(Unauthenticated, Principal{}, "")
	}
	if err := CheckLocal(cred.Token, g.now()); err != nil {
		g.logger.Info("stored credential rejected locally", zap.Error(err))
		g.purgeLocked(ctx)
		notice := ""
		if errors.Is(err, ErrCredentialExpired) {
			notice = NoticeSessionExpired
		}
		return g.transitionLocked(Unauthenticated, Principal{}, notice)
	}
	g.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, g.timeout)
	principal, err := g.auth.Profile(rctx, cred.Token)
	cancel()

	g.mu.Lock()
	if gen != g.generation {
		g.logger.Debug("dropping stale revalidation result")
		state := g.state
		g.mu.Unlock()
		return state
	}
	if err != nil {
		g.logger.Info("session revalidation failed", zap.Error(err))
		g.purgeLocked(ctx)
		return g.transitionLocked(Unauthenticated, Principal{}, NoticeSessionExpired)
	}
	if principal == (Principal{}) {
		principal = cred.Principal
	} else if err := g.creds.SetPrincipal(ctx, principal); err != nil {
		g.logger.Warn("principal refresh not persisted", zap.Error(err))
	}
	return g.transitionLocked(Authenticated, principal, "")
}

// Login exchanges email and password for a credential and persists it.
func (g *Guard) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil || password == "" {
		return ErrInvalidInput
	}

	g.mu.Lock()
	g.generation++
	gen := g.generation
	g.mu.Unlock()

	cred, err := g.auth.Login(ctx, email, password)
	if err == nil {
		err = CheckLocal(cred.Token, g.now())
	}

	g.mu.Lock()
	if gen != g.generation {
		g.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		if g.state == Unknown {
			g.transitionLocked(Unauthenticated, Principal{}, "")
		} else {
			g.mu.Unlock()
		}
		return err
	}
	if err := g.creds.Set(ctx, cred); err != nil {
		g.logger.Warn("credential not persisted, session lasts for this process only", zap.Error(err))
	}
	g.transitionLocked(Authenticated, cred.Principal, "")
	return nil
}

// Logout purges the credential. It takes precedence over any in-flight
// revalidation or login.
func (g *Guard) Logout(ctx context.Context) {
	g.mu.Lock()
	g.generation++
	g.purgeLocked(ctx)
	g.transitionLocked(Unauthenticated, Principal{}, "")
}

// HandleUnauthorized is called when an API call reports 401/403 for the
// current credential.
func (g *Guard) HandleUnauthorized(ctx context.Context) {
	g.mu.Lock()
	g.generation++
	g.purgeLocked(ctx)
	g.transitionLocked(Unauthenticated, Principal{}, NoticeSessionExpired)
}

// Observe inspects err from an authenticated API call and purges the session
// when it is ErrUnauthorized. It returns err unchanged.
func (g *Guard) Observe(ctx context.Context, err error) error {
	if errors.Is(err, ErrUnauthorized) {
		g.HandleUnauthorized(ctx)
	}
	return err
}

// Token returns the stored token when the guard is authenticated.
func (g *Guard) Token(ctx context.Context) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != Authenticated {
		return "", false
	}
	cred, ok, err := g.creds.Load(ctx)
	if err != nil || !ok {
		return "", false
	}
	return cred.Token, true
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *Guard) Principal() Principal {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.principal
}

// Notice is the last user-facing message, e.g. NoticeSessionExpired.
func (g *Guard) Notice() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.notice
}

// Subscribe registers l and returns a function that unregisters it.
func (g *Guard) Subscribe(l Listener) (unsubscribe func()) {
	g.mu.Lock()
	id := g.nextID
	g.nextID++
	g.listeners[id] = l
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.listeners, id)
			g.mu.Unlock()
		})
	}
}

func (g *Guard) purgeLocked(ctx context.Context) {
	if err := g.creds.Clear(ctx); err != nil {
		g.logger.Warn("credential purge incomplete", zap.Error(err))
	}
}

// transitionLocked must be called with g.mu held and releases it before
// notifying listeners.
func (g *Guard) transitionLocked(to State, p Principal, notice string) State {
	tr := Transition{From: g.state, To: to, Principal: p, Notice: notice}
	g.state = to
	g.principal = p
	g.notice = notice
	var listeners []Listener
	for _, l := range g.listeners {
		listeners = append(listeners, l)
	}
	g.mu.Unlock()

	for _, l := range listeners {
		l(tr)
	}
	return to
}
