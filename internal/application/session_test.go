package application

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/example/gymdesk-client/internal/api"
	"github.com/example/gymdesk-client/internal/apperror"
	"github.com/example/gymdesk-client/internal/credentials"
)

func seededStore() *credentials.MemoryStore {
	return credentials.NewMemoryStore(credentials.Credentials{
		AccessToken:  "A",
		RefreshToken: "R",
		UserID:       42,
		Role:         credentials.RoleAdmin,
	})
}

func TestSessionControllerInitialState(t *testing.T) {
	t.Parallel()

	t.Run("restores stored session", func(t *testing.T) {
		t.Parallel()
		controller := NewSessionController(&stubAuthenticator{}, seededStore(), nil, nil)
		session := controller.Current()
		if !session.Authenticated() || session.UserID != 42 || !session.IsAdmin() {
			t.Fatalf("expected restored admin session, got %+v", session)
		}
	})

	t.Run("defaults missing role to user", func(t *testing.T) {
		t.Parallel()
		store := credentials.NewMemoryStore(credentials.Credentials{AccessToken: "A", UserID: 3})
		session := NewSessionController(&stubAuthenticator{}, store, nil, nil).Current()
		if session.Role != credentials.RoleUser || session.IsAdmin() {
			t.Fatalf("expected user role, got %+v", session)
		}
	})

	t.Run("anonymous without access token", func(t *testing.T) {
		t.Parallel()
		store := credentials.NewMemoryStore(credentials.Credentials{RefreshToken: "R"})
		controller := NewSessionController(&stubAuthenticator{}, store, nil, nil)
		if controller.Current().Authenticated() {
			t.Fatalf("expected anonymous session")
		}
		if !errors.Is(controller.RequireAuthenticated(), ErrNotAuthenticated) {
			t.Fatalf("expected ErrNotAuthenticated")
		}
	})
}

func TestSessionControllerLogin(t *testing.T) {
	t.Parallel()

	t.Run("success authenticates and purges views", func(t *testing.T) {
		t.Parallel()
		views := NewViewCache(4, time.Minute, nil)
		views.Store(reservationsKey(""), []api.Reservation{{ID: 1}}, views.Generation())
		auth := &stubAuthenticator{identity: api.Identity{UserID: 9, Role: credentials.RoleUser}}
		controller := NewSessionController(auth, credentials.NewMemoryStore(credentials.Credentials{}), views, nil)

		session, err := controller.Login(context.Background(), "a@example.com", "secret")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if !session.Authenticated() || session.UserID != 9 {
			t.Fatalf("expected authenticated session, got %+v", session)
		}
		if controller.Current() != session {
			t.Fatalf("expected current session to match returned session")
		}
		if views.Len() != 0 {
			t.Fatalf("expected views purged on login")
		}
	})

	t.Run("failure keeps state", func(t *testing.T) {
		t.Parallel()
		authErr := apperror.New(apperror.KindAuth, "Login", 401, "Invalid credentials")
		controller := NewSessionController(&stubAuthenticator{err: authErr}, credentials.NewMemoryStore(credentials.Credentials{}), nil, nil)

		session, err := controller.Login(context.Background(), "a@example.com", "wrong")
		if !errors.Is(err, apperror.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
		if session.Authenticated() || controller.Current().Authenticated() {
			t.Fatalf("expected anonymous session after failure")
		}
	})

	t.Run("register uses the same transition", func(t *testing.T) {
		t.Parallel()
		auth := &stubAuthenticator{identity: api.Identity{UserID: 5, Role: credentials.RoleUser}}
		controller := NewSessionController(auth, credentials.NewMemoryStore(credentials.Credentials{}), nil, nil)
		session, err := controller.Register(context.Background(), "n@example.com", "newbie", "secret")
		if err != nil || session.UserID != 5 {
			t.Fatalf("expected registered session, got %+v, %v", session, err)
		}
	})
}

func TestSessionControllerLogout(t *testing.T) {
	t.Parallel()

	t.Run("from authenticated", func(t *testing.T) {
		t.Parallel()
		store := seededStore()
		views := NewViewCache(4, time.Minute, nil)
		views.Store(resourcesKey(""), []api.Resource{{ID: 1}}, views.Generation())
		controller := NewSessionController(&stubAuthenticator{}, store, views, nil)

		controller.Logout(context.Background())

		if !store.Get().IsZero() {
			t.Fatalf("expected credentials cleared, got %+v", store.Get())
		}
		if controller.Current().Authenticated() {
			t.Fatalf("expected anonymous after logout")
		}
		if views.Len() != 0 {
			t.Fatalf("expected views purged on logout")
		}
	})

	t.Run("from anonymous twice", func(t *testing.T) {
		t.Parallel()
		store := credentials.NewMemoryStore(credentials.Credentials{RefreshToken: "orphan"})
		controller := NewSessionController(&stubAuthenticator{}, store, nil, nil)

		controller.Logout(context.Background())
		controller.Logout(context.Background())

		if !store.Get().IsZero() {
			t.Fatalf("expected credentials cleared, got %+v", store.Get())
		}
	})
}

func TestSessionControllerObserve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		invalidate bool
	}{
		{name: "token expired", err: apperror.New(apperror.KindTokenExpired, "ListReservations", 401, "token expired"), invalidate: true},
		{name: "auth", err: fmt.Errorf("wrapped: %w", apperror.New(apperror.KindAuth, "ListResources", 401, "")), invalidate: true},
		{name: "authorization", err: apperror.New(apperror.KindAuthorization, "GenerateTimeSlots", 403, "forbidden")},
		{name: "conflict", err: apperror.New(apperror.KindConflict, "CreateReservation", 400, "TimeSlot not available")},
		{name: "network", err: apperror.Network("ListResources", errors.New("dial tcp: refused"))},
		{name: "nil", err: nil},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			store := seededStore()
			views := NewViewCache(4, time.Minute, nil)
			views.Store(resourcesKey(""), []api.Resource{{ID: 1}}, views.Generation())
			controller := NewSessionController(&stubAuthenticator{}, store, views, nil)

			controller.Observe(controller.Epoch(), tc.err)

			if got := controller.Current().Authenticated(); got == tc.invalidate {
				t.Fatalf("expected authenticated=%v, got %v", !tc.invalidate, got)
			}
			if got := store.Get().IsZero(); got != tc.invalidate {
				t.Fatalf("expected cleared=%v, got %v", tc.invalidate, got)
			}
			if got := views.Len() == 0; got != tc.invalidate {
				t.Fatalf("expected views purged=%v, got %v", tc.invalidate, got)
			}
		})
	}
}

func TestSessionControllerIgnoresFailuresFromEarlierSession(t *testing.T) {
	t.Parallel()

	store := seededStore()
	views := NewViewCache(4, time.Minute, nil)
	auth := &stubAuthenticator{identity: api.Identity{UserID: 9, Role: credentials.RoleUser}}
	controller := NewSessionController(auth, store, views, nil)
	expired := apperror.New(apperror.KindTokenExpired, "ListReservations", 401, "token expired")

	t.Run("after a login", func(t *testing.T) {
		started := controller.Epoch()
		if _, err := controller.Login(context.Background(), "b@example.com", "secret"); err != nil {
			t.Fatalf("login: %v", err)
		}
		store.Set(credentials.SessionUpdate("B", "RB", 9, credentials.RoleUser))
		views.Store(resourcesKey(""), []api.Resource{{ID: 1}}, views.Generation())

		controller.Observe(started, expired)

		if session := controller.Current(); !session.Authenticated() || session.UserID != 9 {
			t.Fatalf("expected the new session to survive, got %+v", session)
		}
		if store.Get().RefreshToken != "RB" || views.Len() != 1 {
			t.Fatalf("expected credentials and views untouched, got %+v", store.Get())
		}
	})

	t.Run("during a login", func(t *testing.T) {
		var during uint64
		auth.onCall = func() { during = controller.Epoch() }
		if _, err := controller.Login(context.Background(), "b@example.com", "secret"); err != nil {
			t.Fatalf("login: %v", err)
		}

		controller.Observe(during, expired)

		if !controller.Current().Authenticated() || store.Get().IsZero() {
			t.Fatalf("expected a call started mid-login not to end the session")
		}
	})

	t.Run("current session", func(t *testing.T) {
		controller.Observe(controller.Epoch(), expired)
		if controller.Current().Authenticated() || !store.Get().IsZero() {
			t.Fatalf("expected the current session to end")
		}

		controller.Observe(controller.Epoch(), expired)
		if !store.Get().IsZero() {
			t.Fatalf("expected repeated observation to stay anonymous")
		}
	})
}
