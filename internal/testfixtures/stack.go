package testfixtures

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/gymdesk-client/internal/api"
	"github.com/example/gymdesk-client/internal/credentials"
	"github.com/example/gymdesk-client/internal/logging"
	"github.com/example/gymdesk-client/internal/transport"
)

// ClientStack wires a credential store, an executor and the API façade
// against a Backend.
type ClientStack struct {
	Store      credentials.Store
	Executor   *transport.Executor
	Client     *api.Client
	RequestIDs *RequestIDs
}

// StackOption configures NewClientStack.
type StackOption func(*stackConfig)

type stackConfig struct {
	store  credentials.Store
	logger *slog.Logger
}

// WithStore replaces the default memory store.
func WithStore(store credentials.Store) StackOption {
	return func(cfg *stackConfig) { cfg.store = store }
}

// WithLogger replaces the discarding logger.
func WithLogger(logger *slog.Logger) StackOption {
	return func(cfg *stackConfig) { cfg.logger = logger }
}

// NewClientStack builds a ClientStack talking to backend.
func NewClientStack(tb testing.TB, backend *Backend, opts ...StackOption) *ClientStack {
	tb.Helper()

	cfg := stackConfig{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.store == nil {
		cfg.store = credentials.NewMemoryStore(credentials.Credentials{})
	}

	ids := &RequestIDs{}
	exec, err := transport.New(transport.Options{
		BaseURL:   backend.URL(),
		Store:     cfg.store,
		Logger:    cfg.logger,
		RequestID: ids.Next,
	})
	if err != nil {
		tb.Fatalf("failed to build executor: %v", err)
	}

	return &ClientStack{
		Store:      cfg.store,
		Executor:   exec,
		Client:     api.NewClient(exec, cfg.store, cfg.logger),
		RequestIDs: ids,
	}
}

// LoginAs stores a fresh session for userID without calling the login endpoint.
func (s *ClientStack) LoginAs(backend *Backend, userID int64, role credentials.Role) {
	access, refresh := backend.IssueTokens(userID)
	s.Store.Set(credentials.SessionUpdate(access, refresh, userID, role))
}

// NewSQLiteStore opens a credential store in a temporary directory and
// closes it when tb finishes.
func NewSQLiteStore(tb testing.TB, opts credentials.SQLiteOptions) (*credentials.SQLiteStore, string) {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "credentials.db")
	if opts.KeyParams == (credentials.KeyParams{}) {
		opts.KeyParams = credentials.KeyParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	store, err := credentials.OpenSQLite(context.Background(), "file:"+path, opts)
	if err != nil {
		tb.Fatalf("failed to open credential store: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })
	return store, path
}
