package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/example/gymdesk-client/internal/apperror"
	"github.com/example/gymdesk-client/internal/credentials"
	"github.com/example/gymdesk-client/internal/logging"
)

// tokenServer accepts whatever access token is current and rotates it on refresh.
type tokenServer struct {
	mu            sync.Mutex
	validToken    string
	nextToken     string
	rotated       string
	refreshToken  string
	refreshStatus int
	refreshBody   string
	refreshDelay  time.Duration
	refreshCalls  atomic.Int32
	dataCalls     atomic.Int32
	lastRequestID string
	lastBody      string
	alwaysDeny    bool

	// refreshStarted and releaseRefresh, when set, hold the refresh exchange
	// open until the test releases it.
	refreshStarted chan struct{}
	releaseRefresh chan struct{}
	// onData runs before each data request is answered.
	onData func()
}

func (s *tokenServer) holdRefresh() {
	s.refreshStarted = make(chan struct{}, 1)
	s.releaseRefresh = make(chan struct{})
}

func (s *tokenServer) handler(t *testing.T) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case DefaultRefreshPath:
			s.refreshCalls.Add(1)
			if r.Header.Get("Authorization") != "" {
				t.Errorf("expected refresh without bearer credential, got %q", r.Header.Get("Authorization"))
			}
			if s.refreshDelay > 0 {
				time.Sleep(s.refreshDelay)
			}
			if s.releaseRefresh != nil {
				s.refreshStarted <- struct{}{}
				<-s.releaseRefresh
			}
			var payload struct {
				Refresh string `json:"refresh"`
			}
			_ = json.NewDecoder(r.Body).Decode(&payload)

			s.mu.Lock()
			defer s.mu.Unlock()
			if s.refreshStatus != 0 {
				w.WriteHeader(s.refreshStatus)
				_, _ = io.WriteString(w, s.refreshBody)
				return
			}
			if payload.Refresh != s.refreshToken {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"invalid refresh"}`)
				return
			}
			s.validToken = s.nextToken
			body := map[string]string{"access": s.nextToken}
			if s.rotated != "" {
				body["refresh"] = s.rotated
			}
			_ = json.NewEncoder(w).Encode(body)
		default:
			s.dataCalls.Add(1)
			if s.onData != nil {
				s.onData()
			}
			data, _ := io.ReadAll(r.Body)
			s.mu.Lock()
			s.lastRequestID = r.Header.Get("X-Request-ID")
			s.lastBody = string(data)
			valid := s.validToken
			s.mu.Unlock()
			if s.alwaysDeny || r.Header.Get("Authorization") != "Bearer "+valid {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = io.WriteString(w, `{"detail":"token expired"}`)
				return
			}
			_, _ = io.WriteString(w, `{"items":[1,2,3]}`)
		}
	})
}

func (s *tokenServer) last() (requestID, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRequestID, s.lastBody
}

func newTestExecutor(t *testing.T, baseURL string, store credentials.Store) *Executor {
	t.Helper()
	exec, err := New(Options{
		BaseURL:   baseURL,
		Store:     store,
		Logger:    logging.Discard(),
		RequestID: func() string { return "req-1" },
	})
	if err != nil {
		t.Fatalf("failed to build executor: %v", err)
	}
	return exec
}

func TestExecutorAttachesCredentials(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{validToken: "A"}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R"})
	exec := newTestExecutor(t, server.URL+"/", store)

	resp, err := exec.Do(context.Background(), Request{Op: "List", Method: http.MethodPost, Path: "/items/", Body: map[string]int{"n": 1}})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if string(resp.Body) != `{"items":[1,2,3]}` {
		t.Fatalf("unexpected body %s", resp.Body)
	}
	requestID, body := srv.last()
	if requestID != "req-1" {
		t.Fatalf("expected request id header, got %q", requestID)
	}
	if strings.TrimSpace(body) != `{"n":1}` {
		t.Fatalf("expected JSON body, got %q", body)
	}
	if srv.refreshCalls.Load() != 0 {
		t.Fatalf("expected no refresh, got %d", srv.refreshCalls.Load())
	}
}

func TestExecutorRefreshesOnceAndRetries(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{validToken: "A2", nextToken: "A2", refreshToken: "R"}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R", UserID: 4, Role: credentials.RoleUser})
	exec := newTestExecutor(t, server.URL, store)

	if _, err := exec.Do(context.Background(), Request{Op: "List", Method: http.MethodPost, Path: "/items/", Body: map[string]int{"n": 2}}); err != nil {
		t.Fatalf("expected retried request to succeed, got %v", err)
	}
	if got := srv.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected exactly one refresh, got %d", got)
	}
	if got := srv.dataCalls.Load(); got != 2 {
		t.Fatalf("expected original call plus one retry, got %d", got)
	}
	if _, body := srv.last(); strings.TrimSpace(body) != `{"n":2}` {
		t.Fatalf("expected retry to resend the body, got %q", body)
	}
	want := credentials.Credentials{AccessToken: "A2", RefreshToken: "R", UserID: 4, Role: credentials.RoleUser}
	if got := store.Get(); got != want {
		t.Fatalf("expected %#v, got %#v", want, got)
	}
}

func TestExecutorAppliesRotatedRefreshToken(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{validToken: "A2", nextToken: "A2", refreshToken: "R", rotated: "R2"}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R"})
	exec := newTestExecutor(t, server.URL, store)

	if _, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if got := store.Get(); got.AccessToken != "A2" || got.RefreshToken != "R2" {
		t.Fatalf("expected rotated pair, got %#v", got)
	}
}

func TestExecutorWithoutRefreshTokenClearsSession(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{validToken: "other"}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", UserID: 1})
	exec := newTestExecutor(t, server.URL, store)

	_, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"})
	if !errors.Is(err, apperror.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if srv.refreshCalls.Load() != 0 {
		t.Fatalf("expected no refresh call, got %d", srv.refreshCalls.Load())
	}
	if !store.Get().IsZero() {
		t.Fatalf("expected credentials to be cleared, got %#v", store.Get())
	}
}

func TestExecutorRefreshFailureClearsSession(t *testing.T) {
	t.Parallel()

	cases := map[string]*tokenServer{
		"rejected":  {refreshToken: "R", refreshStatus: http.StatusUnauthorized, refreshBody: `{"detail":"expired"}`},
		"malformed": {refreshToken: "R", refreshStatus: http.StatusOK, refreshBody: `{"token":"x"}`},
		"not json":  {refreshToken: "R", refreshStatus: http.StatusOK, refreshBody: `<html>`},
	}

	for name, srv := range cases {
		srv := srv
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			srv.validToken = "never"
			server := httptest.NewServer(srv.handler(t))
			t.Cleanup(server.Close)

			store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R"})
			exec := newTestExecutor(t, server.URL, store)

			_, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"})
			if !errors.Is(err, apperror.ErrTokenExpired) {
				t.Fatalf("expected ErrTokenExpired, got %v", err)
			}
			var appErr *apperror.Error
			if !errors.As(err, &appErr) || appErr.Message != "token expired" {
				t.Fatalf("expected the original 401 message, got %v", err)
			}
			if srv.dataCalls.Load() != 1 {
				t.Fatalf("expected no retry, got %d data calls", srv.dataCalls.Load())
			}
			if !store.Get().IsZero() {
				t.Fatalf("expected credentials cleared, got %#v", store.Get())
			}
		})
	}
}

func TestExecutorSecondUnauthorizedIsFinal(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{nextToken: "A2", refreshToken: "R", alwaysDeny: true}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R"})
	exec := newTestExecutor(t, server.URL, store)

	_, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"})
	if !errors.Is(err, apperror.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if srv.refreshCalls.Load() != 1 {
		t.Fatalf("expected one refresh, got %d", srv.refreshCalls.Load())
	}
	if srv.dataCalls.Load() != 2 {
		t.Fatalf("expected exactly one retry, got %d data calls", srv.dataCalls.Load())
	}
}

func TestExecutorCoalescesConcurrentRefreshes(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{validToken: "A2", nextToken: "A2", refreshToken: "R", refreshDelay: 50 * time.Millisecond}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R"})
	exec := newTestExecutor(t, server.URL, store)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("expected every call to succeed, got %v", err)
		}
	}
	if got := srv.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected a single shared refresh, got %d", got)
	}
}

// doDuringRefresh issues one request, runs change while its refresh exchange
// is held open, then lets the exchange finish.
func doDuringRefresh(t *testing.T, exec *Executor, srv *tokenServer, change func()) error {
	t.Helper()

	result := make(chan error, 1)
	go func() {
		_, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"})
		result <- err
	}()

	select {
	case <-srv.refreshStarted:
	case <-time.After(5 * time.Second):
		t.Fatalf("expected a refresh to start")
	}
	change()
	close(srv.releaseRefresh)

	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		t.Fatalf("expected the request to finish")
		return nil
	}
}

func TestExecutorRefreshDoesNotOutliveTheSession(t *testing.T) {
	t.Parallel()

	nextSession := credentials.Credentials{AccessToken: "B", RefreshToken: "RB", UserID: 9, Role: credentials.RoleAdmin}
	cases := []struct {
		name   string
		server *tokenServer
		change func(store credentials.Store)
		want   credentials.Credentials
	}{
		{
			name:   "logout while refreshing",
			server: &tokenServer{validToken: "A2", nextToken: "A2", refreshToken: "R"},
			change: func(store credentials.Store) { store.Clear() },
			want:   credentials.Credentials{},
		},
		{
			name:   "login while refreshing",
			server: &tokenServer{validToken: "OLD-A2", nextToken: "OLD-A2", refreshToken: "R"},
			change: func(store credentials.Store) { store.Set(credentials.SessionUpdate("B", "RB", 9, credentials.RoleAdmin)) },
			want:   nextSession,
		},
		{
			name:   "refresh rejected after a login",
			server: &tokenServer{validToken: "B", refreshToken: "R", refreshStatus: http.StatusUnauthorized, refreshBody: `{"detail":"expired"}`},
			change: func(store credentials.Store) { store.Set(credentials.SessionUpdate("B", "RB", 9, credentials.RoleAdmin)) },
			want:   nextSession,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			srv := tc.server
			srv.holdRefresh()
			server := httptest.NewServer(srv.handler(t))
			t.Cleanup(server.Close)

			store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R", UserID: 4, Role: credentials.RoleUser})
			exec := newTestExecutor(t, server.URL, store)

			err := doDuringRefresh(t, exec, srv, func() { tc.change(store) })
			if !errors.Is(err, apperror.ErrTokenExpired) {
				t.Fatalf("expected ErrTokenExpired, got %v", err)
			}
			if got := store.Get(); got != tc.want {
				t.Fatalf("expected %#v, got %#v", tc.want, got)
			}
			if got := srv.dataCalls.Load(); got != 1 {
				t.Fatalf("expected no retry, got %d data calls", got)
			}
		})
	}
}

func TestExecutorDoesNotRetryWithAReplacedSession(t *testing.T) {
	t.Parallel()

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R", UserID: 4})
	var once sync.Once
	srv := &tokenServer{validToken: "B", nextToken: "A2", refreshToken: "R"}
	srv.onData = func() {
		once.Do(func() { store.Set(credentials.SessionUpdate("B", "RB", 9, credentials.RoleAdmin)) })
	}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)
	exec := newTestExecutor(t, server.URL, store)

	_, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"})
	if !errors.Is(err, apperror.ErrTokenExpired) {
		t.Fatalf("expected the original rejection, got %v", err)
	}
	if srv.dataCalls.Load() != 1 || srv.refreshCalls.Load() != 0 {
		t.Fatalf("expected neither retry nor refresh, got %d data and %d refresh calls", srv.dataCalls.Load(), srv.refreshCalls.Load())
	}
	if got := store.Get(); got.AccessToken != "B" || got.RefreshToken != "RB" || got.UserID != 9 {
		t.Fatalf("expected the new session untouched, got %#v", got)
	}
}

func TestExecutorReusesRotatedTokenForEarlierRequest(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{validToken: "A2", nextToken: "A2", refreshToken: "R", rotated: "R2"}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	before := credentials.Credentials{AccessToken: "A", RefreshToken: "R"}
	store := credentials.NewMemoryStore(before)
	exec := newTestExecutor(t, server.URL, store)

	if _, err := exec.Do(context.Background(), Request{Op: "List", Path: "/items/"}); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	// A request sent with the pre-rotation pair is rejected late.
	token, err := exec.refresh(context.Background(), before)
	if err != nil || token != "A2" {
		t.Fatalf("expected rotated access token to be reused, got %q, %v", token, err)
	}
	if got := srv.refreshCalls.Load(); got != 1 {
		t.Fatalf("expected no second exchange, got %d", got)
	}
}

func TestExecutorSkipAuthDoesNotRefresh(t *testing.T) {
	t.Parallel()

	srv := &tokenServer{validToken: "x", refreshToken: "R", nextToken: "A2"}
	server := httptest.NewServer(srv.handler(t))
	t.Cleanup(server.Close)

	store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", RefreshToken: "R"})
	exec := newTestExecutor(t, server.URL, store)

	_, err := exec.Do(context.Background(), Request{Op: "Login", Method: http.MethodPost, Path: "/auth/login/", SkipAuth: true})
	if !errors.Is(err, apperror.ErrAuth) {
		t.Fatalf("expected ErrAuth for unauthenticated 401, got %v", err)
	}
	if srv.refreshCalls.Load() != 0 {
		t.Fatalf("expected no refresh, got %d", srv.refreshCalls.Load())
	}
	if store.Get().AccessToken != "A" {
		t.Fatalf("expected credentials untouched, got %#v", store.Get())
	}
}

func TestExecutorClassifiesResponses(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		body    string
		kind    error
		message string
		wantRaw string
	}{
		{name: "empty success", status: http.StatusNoContent, wantRaw: `{}`},
		{name: "invalid json success", status: http.StatusOK, body: `not json`, wantRaw: `{}`},
		{name: "envelope failure", status: http.StatusOK, body: `{"success":false,"error":"slot taken"}`, kind: apperror.ErrUnknownServer, message: "slot taken"},
		{name: "envelope failure without message", status: http.StatusOK, body: `{"success":false}`, kind: apperror.ErrUnknownServer, message: "request failed"},
		{name: "forbidden detail", status: http.StatusForbidden, body: `{"detail":"admins only"}`, kind: apperror.ErrAuthorization, message: "admins only"},
		{name: "conflict message", status: http.StatusConflict, body: `{"message":"already booked"}`, kind: apperror.ErrConflict, message: "already booked"},
		{name: "error preferred over detail", status: http.StatusBadRequest, body: `{"error":"bad","detail":"worse"}`, kind: apperror.ErrValidation, message: "bad"},
		{name: "fallback status text", status: http.StatusInternalServerError, body: `<html>oops</html>`, kind: apperror.ErrUnknownServer, message: "500 Internal Server Error"},
		{name: "non string error falls through", status: http.StatusUnprocessableEntity, body: `{"error":{"name":["short"]},"detail":"invalid"}`, kind: apperror.ErrValidation, message: "invalid"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			t.Cleanup(server.Close)

			exec := newTestExecutor(t, server.URL, credentials.NewMemoryStore(credentials.Credentials{}))
			resp, err := exec.Do(context.Background(), Request{Op: "Probe", Path: "/probe/", SkipAuth: true})
			if tc.kind == nil {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				if string(resp.Body) != tc.wantRaw {
					t.Fatalf("expected body %s, got %s", tc.wantRaw, resp.Body)
				}
				return
			}
			if !errors.Is(err, tc.kind) {
				t.Fatalf("expected %v, got %v", tc.kind, err)
			}
			var appErr *apperror.Error
			if !errors.As(err, &appErr) {
				t.Fatalf("expected *apperror.Error, got %T", err)
			}
			if appErr.Message != tc.message || appErr.Status != tc.status || appErr.Op != "Probe" {
				t.Fatalf("unexpected error fields %#v", appErr)
			}
		})
	}
}

func TestExecutorNetworkFailure(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	base := server.URL
	server.Close()

	exec := newTestExecutor(t, base, credentials.NewMemoryStore(credentials.Credentials{}))
	_, err := exec.Do(context.Background(), Request{Op: "Probe", Path: "/probe/"})
	if !errors.Is(err, apperror.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
}

func TestNewRequiresBaseURLAndStore(t *testing.T) {
	t.Parallel()

	if _, err := New(Options{Store: credentials.NewMemoryStore(credentials.Credentials{})}); err == nil {
		t.Fatalf("expected missing base URL to fail")
	}
	if _, err := New(Options{BaseURL: "http://localhost"}); err == nil {
		t.Fatalf("expected missing store to fail")
	}
}
