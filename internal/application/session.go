package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/gymdesk-client/internal/api"
	"github.com/example/gymdesk-client/internal/apperror"
	"github.com/example/gymdesk-client/internal/credentials"
)

// SessionState enumerates the authentication states.
type SessionState int

const (
	StateAnonymous SessionState = iota
	StateAuthenticated
)

func (s SessionState) String() string {
	if s == StateAuthenticated {
		return "authenticated"
	}
	return "anonymous"
}

// Session is a snapshot of the authentication state.
type Session struct {
	State  SessionState
	UserID int64
	Role   credentials.Role
}

// Authenticated reports whether the session holds an identity.
func (s Session) Authenticated() bool {
	return s.State == StateAuthenticated
}

// IsAdmin reports whether the session belongs to an administrator. It is a
// presentation gate only; the server enforces authorization.
func (s Session) IsAdmin() bool {
	return s.Authenticated() && s.Role == credentials.RoleAdmin
}

// SessionController owns the process-wide authentication state.
type SessionController struct {
	mu      sync.RWMutex
	auth    Authenticator
	store   credentials.Store
	views   *ViewCache
	logger  *slog.Logger
	current Session
	// epoch advances on every session transition. Failures are observed
	// against the epoch their call started in.
	epoch uint64
}

// NewSessionController derives the initial state from store. views may be nil.
func NewSessionController(auth Authenticator, store credentials.Store, views *ViewCache, logger *slog.Logger) *SessionController {
	c := &SessionController{
		auth:   auth,
		store:  store,
		views:  views,
		logger: defaultLogger(logger),
	}
	c.current = sessionFrom(store.Get())
	return c
}

func sessionFrom(creds credentials.Credentials) Session {
	if !creds.HasAccessToken() {
		return Session{State: StateAnonymous}
	}
	role := creds.Role
	if role == credentials.RoleUnknown {
		role = credentials.RoleUser
	}
	return Session{State: StateAuthenticated, UserID: creds.UserID, Role: role}
}

// Current returns the current session.
func (c *SessionController) Current() Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Epoch identifies the current session. Capture it before a remote call and
// pass it to Observe with the outcome.
func (c *SessionController) Epoch() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epoch
}

// Login authenticates and transitions to Authenticated on success. On failure
// the state is unchanged and the error is returned.
func (c *SessionController) Login(ctx context.Context, email, password string) (Session, error) {
	return c.establish(ctx, "Login", func() (api.Identity, error) {
		return c.auth.Login(ctx, email, password)
	})
}

// Register creates an identity and transitions like Login.
func (c *SessionController) Register(ctx context.Context, email, username, password string) (Session, error) {
	return c.establish(ctx, "Register", func() (api.Identity, error) {
		return c.auth.Register(ctx, email, username, password)
	})
}

func (c *SessionController) establish(ctx context.Context, op string, call func() (api.Identity, error)) (session Session, err error) {
	logger := serviceLogger(ctx, c.logger, "SessionController", op)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "session not established", "error", err, "error_kind", apperror.Label(err))
			return
		}
		logger.InfoContext(ctx, "session established", "user_id", session.UserID, "role", session.Role)
	}()

	// Calls still in flight for the previous session must not end the one
	// being established, whose credentials are stored before call returns.
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()

	identity, err := call()
	if err != nil {
		return c.Current(), err
	}

	session = Session{State: StateAuthenticated, UserID: identity.UserID, Role: identity.Role}
	c.mu.Lock()
	c.current = session
	c.epoch++
	c.mu.Unlock()

	// Views cached for a previous identity must not leak into this one.
	c.views.Invalidate()
	return session, nil
}

// Logout clears the session unconditionally.
func (c *SessionController) Logout(ctx context.Context) {
	c.mu.Lock()
	c.store.Clear()
	previous := c.current
	c.current = Session{State: StateAnonymous}
	c.epoch++
	c.mu.Unlock()
	c.views.Invalidate()

	serviceLogger(ctx, c.logger, "SessionController", "Logout").
		InfoContext(ctx, "session cleared", "was_authenticated", previous.Authenticated())
}

// Observe ends the session when err reports rejected or expired credentials
// for a call started in epoch. Failures from an earlier session and every
// other kind of failure leave the session untouched.
func (c *SessionController) Observe(epoch uint64, err error) {
	if err == nil {
		return
	}
	if !errors.Is(err, apperror.ErrTokenExpired) && !errors.Is(err, apperror.ErrAuth) {
		return
	}

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("stale session failure ignored", "service", "SessionController", "error_kind", apperror.Label(err))
		return
	}
	wasAuthenticated := c.current.Authenticated()
	c.current = Session{State: StateAnonymous}
	if wasAuthenticated {
		c.epoch++
		c.store.Clear()
	}
	c.mu.Unlock()
	if !wasAuthenticated {
		return
	}

	c.views.Invalidate()
	c.logger.Info("session invalidated", "service", "SessionController", "error_kind", apperror.Label(err))
}

// RequireAuthenticated returns ErrNotAuthenticated when no session exists.
func (c *SessionController) RequireAuthenticated() error {
	if !c.Current().Authenticated() {
		return ErrNotAuthenticated
	}
	return nil
}
