package application

import (
	"context"

	"github.com/example/gymdesk-client/internal/api"
)

// Authenticator establishes sessions.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (api.Identity, error)
	Register(ctx context.Context, email, username, password string) (api.Identity, error)
}

// CatalogAPI is the subset of the façade used by Catalog.
type CatalogAPI interface {
	ListResources(ctx context.Context, kind api.ResourceKind) ([]api.Resource, error)
	CreateResource(ctx context.Context, spec api.ResourceSpec) (api.Resource, error)
	ListTimeSlots(ctx context.Context, q api.TimeSlotQuery) ([]api.TimeSlot, error)
	GenerateTimeSlots(ctx context.Context, req api.GenerateSlotsRequest) (string, error)
	ListReservations(ctx context.Context, status api.ReservationStatus) ([]api.Reservation, error)
	CancelReservation(ctx context.Context, id int64) (api.Reservation, error)
}

// ReservationCreator submits a booking.
type ReservationCreator interface {
	CreateReservation(ctx context.Context, req api.NewReservation) (api.Reservation, error)
}

// SlotSource lists time slot candidates.
type SlotSource interface {
	TimeSlots(ctx context.Context, q api.TimeSlotQuery) ([]api.TimeSlot, error)
}

// SessionObserver is told about operation failures so that an expired
// session is noticed wherever it surfaces. Epoch is read before the call
// and handed back with its outcome.
type SessionObserver interface {
	Epoch() uint64
	Observe(epoch uint64, err error)
}
