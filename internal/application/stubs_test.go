package application

import (
	"context"
	"sync"

	"github.com/example/gymdesk-client/internal/api"
)

type stubAuthenticator struct {
	identity api.Identity
	err      error
	calls    int
	onCall   func()
}

func (s *stubAuthenticator) Login(context.Context, string, string) (api.Identity, error) {
	s.calls++
	if s.onCall != nil {
		s.onCall()
	}
	return s.identity, s.err
}

func (s *stubAuthenticator) Register(context.Context, string, string, string) (api.Identity, error) {
	s.calls++
	return s.identity, s.err
}

type stubCatalogAPI struct {
	mu sync.Mutex

	listResources    func(kind api.ResourceKind) ([]api.Resource, error)
	createResource   func(spec api.ResourceSpec) (api.Resource, error)
	listTimeSlots    func(q api.TimeSlotQuery) ([]api.TimeSlot, error)
	generateSlots    func(req api.GenerateSlotsRequest) (string, error)
	listReservations func(status api.ReservationStatus) ([]api.Reservation, error)
	cancel           func(id int64) (api.Reservation, error)

	calls map[string]int
}

func (s *stubCatalogAPI) record(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[name]++
}

func (s *stubCatalogAPI) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *stubCatalogAPI) ListResources(_ context.Context, kind api.ResourceKind) ([]api.Resource, error) {
	s.record("ListResources")
	if s.listResources == nil {
		return nil, nil
	}
	return s.listResources(kind)
}

func (s *stubCatalogAPI) CreateResource(_ context.Context, spec api.ResourceSpec) (api.Resource, error) {
	s.record("CreateResource")
	return s.createResource(spec)
}

func (s *stubCatalogAPI) ListTimeSlots(_ context.Context, q api.TimeSlotQuery) ([]api.TimeSlot, error) {
	s.record("ListTimeSlots")
	if s.listTimeSlots == nil {
		return nil, nil
	}
	return s.listTimeSlots(q)
}

func (s *stubCatalogAPI) GenerateTimeSlots(_ context.Context, req api.GenerateSlotsRequest) (string, error) {
	s.record("GenerateTimeSlots")
	return s.generateSlots(req)
}

// ListReservations fails like an aborted request when ctx ended meanwhile.
func (s *stubCatalogAPI) ListReservations(ctx context.Context, status api.ReservationStatus) ([]api.Reservation, error) {
	s.record("ListReservations")
	if s.listReservations == nil {
		return nil, nil
	}
	items, err := s.listReservations(status)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return items, err
}

func (s *stubCatalogAPI) CancelReservation(_ context.Context, id int64) (api.Reservation, error) {
	s.record("CancelReservation")
	return s.cancel(id)
}

type stubSlotSource struct {
	slots []api.TimeSlot
	err   error
	last  api.TimeSlotQuery
}

func (s *stubSlotSource) TimeSlots(_ context.Context, q api.TimeSlotQuery) ([]api.TimeSlot, error) {
	s.last = q
	return s.slots, s.err
}

type stubCreator struct {
	mu       sync.Mutex
	create   func(ctx context.Context, req api.NewReservation) (api.Reservation, error)
	requests []api.NewReservation
}

func (s *stubCreator) CreateReservation(ctx context.Context, req api.NewReservation) (api.Reservation, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()
	return s.create(ctx, req)
}

func (s *stubCreator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingNotifier struct {
	mu        sync.Mutex
	successes []string
	failures  []error
	events    []string
}

func (n *recordingNotifier) Success(_ context.Context, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.successes = append(n.successes, message)
	n.events = append(n.events, "success")
}

func (n *recordingNotifier) Failure(_ context.Context, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures = append(n.failures, err)
	n.events = append(n.events, "failure")
}

func (n *recordingNotifier) counts() (int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.successes), len(n.failures)
}

type recordingObserver struct {
	mu       sync.Mutex
	current  uint64
	observed []error
}

func (o *recordingObserver) Epoch() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

func (o *recordingObserver) Observe(_ uint64, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observed = append(o.observed, err)
}

func (o *recordingObserver) advance() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.current++
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.observed)
}
