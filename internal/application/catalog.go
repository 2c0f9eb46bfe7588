package application

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/example/gymdesk-client/internal/api"
	"github.com/example/gymdesk-client/internal/apperror"
)

// Catalog serves read-through cached views of resources, slots and
// reservations, and performs the mutations that invalidate them.
type Catalog struct {
	api      CatalogAPI
	views    *ViewCache
	loads    singleflight.Group
	notifier Notifier
	session  SessionObserver
	logger   *slog.Logger
}

// CatalogDeps captures the collaborators of a Catalog.
type CatalogDeps struct {
	API      CatalogAPI
	Views    *ViewCache
	Notifier Notifier
	Session  SessionObserver
	Logger   *slog.Logger
}

// NewCatalog constructs a Catalog.
func NewCatalog(deps CatalogDeps) *Catalog {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = discardNotifier{}
	}
	return &Catalog{
		api:      deps.API,
		views:    deps.Views,
		notifier: notifier,
		session:  deps.Session,
		logger:   defaultLogger(deps.Logger),
	}
}

// Resources lists resources of kind, or all resources when kind is empty.
func (c *Catalog) Resources(ctx context.Context, kind api.ResourceKind) ([]api.Resource, error) {
	return readThrough(ctx, c, "Resources", resourcesKey(kind), func(ctx context.Context) ([]api.Resource, error) {
		return c.api.ListResources(ctx, kind)
	})
}

// TimeSlots lists slots matching q.
func (c *Catalog) TimeSlots(ctx context.Context, q api.TimeSlotQuery) ([]api.TimeSlot, error) {
	return readThrough(ctx, c, "TimeSlots", timeSlotsKey(q), func(ctx context.Context) ([]api.TimeSlot, error) {
		return c.api.ListTimeSlots(ctx, q)
	})
}

// Reservations lists the caller's reservations with status, or all when empty.
func (c *Catalog) Reservations(ctx context.Context, status api.ReservationStatus) ([]api.Reservation, error) {
	return readThrough(ctx, c, "Reservations", reservationsKey(status), func(ctx context.Context) ([]api.Reservation, error) {
		return c.api.ListReservations(ctx, status)
	})
}

// CreateResource creates a resource and invalidates resource views.
func (c *Catalog) CreateResource(ctx context.Context, spec api.ResourceSpec) (resource api.Resource, err error) {
	logger := serviceLogger(ctx, c.logger, "Catalog", "CreateResource")
	epoch := c.epoch()
	defer func() {
		c.finish(ctx, logger, epoch, err, fmt.Sprintf("Resource %q created", resource.Name))
	}()

	resource, err = c.api.CreateResource(ctx, spec)
	if err != nil {
		return api.Resource{}, err
	}
	c.views.Invalidate(viewResources + "|")
	return resource, nil
}

// GenerateTimeSlots requests slot generation and invalidates the slot views
// of the resource.
func (c *Catalog) GenerateTimeSlots(ctx context.Context, req api.GenerateSlotsRequest) (message string, err error) {
	logger := serviceLogger(ctx, c.logger, "Catalog", "GenerateTimeSlots", "resource_id", req.ResourceID)
	epoch := c.epoch()
	defer func() {
		success := message
		if success == "" {
			success = "Time slots generated"
		}
		c.finish(ctx, logger, epoch, err, success)
	}()

	message, err = c.api.GenerateTimeSlots(ctx, req)
	if err != nil {
		return "", err
	}
	c.views.Invalidate(timeSlotPrefixes(req.ResourceID)...)
	return message, nil
}

// CancelReservation cancels a reservation in one step. Nothing is changed
// locally until the server confirms; on success reservation and slot views
// are invalidated.
func (c *Catalog) CancelReservation(ctx context.Context, id int64) (reservation api.Reservation, err error) {
	logger := serviceLogger(ctx, c.logger, "Catalog", "CancelReservation", "reservation_id", id)
	epoch := c.epoch()
	defer func() {
		c.finish(ctx, logger, epoch, err, "Reservation cancelled")
	}()

	reservation, err = c.api.CancelReservation(ctx, id)
	if err != nil {
		return api.Reservation{}, err
	}
	prefixes := append([]string{viewReservations + "|"}, timeSlotPrefixes(reservation.ResourceID)...)
	c.views.Invalidate(prefixes...)
	return reservation, nil
}

func (c *Catalog) finish(ctx context.Context, logger *slog.Logger, epoch uint64, err error, success string) {
	if err != nil {
		logger.WarnContext(ctx, "operation failed", "error", err, "error_kind", apperror.Label(err))
		c.observe(epoch, err)
		c.notifier.Failure(ctx, err)
		return
	}
	logger.InfoContext(ctx, "operation completed")
	c.notifier.Success(ctx, success)
}

func (c *Catalog) epoch() uint64 {
	if c.session == nil {
		return 0
	}
	return c.session.Epoch()
}

func (c *Catalog) observe(epoch uint64, err error) {
	if c.session != nil {
		c.session.Observe(epoch, err)
	}
}

// readThrough serves key from the cache or loads it once for all concurrent
// callers of the same session. Callers receive independent copies. A caller
// whose ctx ends stops waiting; the shared load carries on for the others.
func readThrough[T any](ctx context.Context, c *Catalog, op, key string, load func(ctx context.Context) ([]T, error)) ([]T, error) {
	if cached, ok := c.views.Get(key); ok {
		if items, ok := cached.([]T); ok {
			return cloneSlice(items), nil
		}
	}

	epoch := c.epoch()
	loaded := c.loads.DoChan(fmt.Sprintf("%d|%s", epoch, key), func() (any, error) {
		generation := c.views.Generation()
		items, err := load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		c.views.Store(key, items, generation)
		return items, nil
	})

	var result singleflight.Result
	select {
	case result = <-loaded:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if result.Err != nil {
		serviceLogger(ctx, c.logger, "Catalog", op).
			WarnContext(ctx, "view load failed", "error", result.Err, "error_kind", apperror.Label(result.Err))
		c.observe(epoch, result.Err)
		return nil, result.Err
	}
	return cloneSlice(result.Val.([]T)), nil
}
