// Package api exposes typed GymDesk operations over the authenticated
// request executor. Wire shapes and upper-case enum codes never leave this
// package.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/example/gymdesk-client/internal/apperror"
	"github.com/example/gymdesk-client/internal/credentials"
	"github.com/example/gymdesk-client/internal/logging"
	"github.com/example/gymdesk-client/internal/transport"
)

// Executor performs a single remote call.
type Executor interface {
	Do(ctx context.Context, req transport.Request) (transport.Response, error)
}

// Identity is the principal established by login or register.
type Identity struct {
	UserID int64
	Role   credentials.Role
}

// Client is the domain API façade.
type Client struct {
	exec   Executor
	store  credentials.Store
	logger *slog.Logger
}

// NewClient constructs a Client. store receives the session established by
// Login and Register.
func NewClient(exec Executor, store credentials.Store, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{exec: exec, store: store, logger: logger}
}

// Login authenticates with email and password and stores the resulting
// session as one update. Credentials are left untouched on failure.
func (c *Client) Login(ctx context.Context, email, password string) (Identity, error) {
	return c.authenticate(ctx, "Login", "/auth/login/", map[string]string{
		"email":    email,
		"password": password,
	})
}

// Register creates an identity and stores its session like Login.
func (c *Client) Register(ctx context.Context, email, username, password string) (Identity, error) {
	return c.authenticate(ctx, "Register", "/auth/register/", map[string]string{
		"email":    email,
		"username": username,
		"password": password,
	})
}

func (c *Client) authenticate(ctx context.Context, op, path string, body any) (identity Identity, err error) {
	logger := logging.Component(ctx, c.logger, "service", "API", op)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "authentication failed", "error", err, "error_kind", apperror.Label(err))
			return
		}
		logger.InfoContext(ctx, "authenticated", "user_id", identity.UserID, "role", identity.Role)
	}()

	resp, err := c.exec.Do(ctx, transport.Request{
		Op:       op,
		Method:   http.MethodPost,
		Path:     path,
		Body:     body,
		SkipAuth: true,
	})
	if err != nil {
		return Identity{}, authFailure(op, err)
	}

	var payload authPayload
	if err := decodeInto(resp.Body, &payload); err != nil {
		return Identity{}, malformed(op, err)
	}
	if payload.Access == "" {
		return Identity{}, malformed(op, errors.New("missing access token"))
	}

	userID, role := payload.UserID, payload.Role
	if payload.User != nil {
		if userID == 0 {
			userID = payload.User.ID
		}
		if role == "" {
			role = payload.User.Role
		}
	}
	identity = Identity{UserID: userID, Role: credentials.ParseRole(role)}
	if identity.Role == credentials.RoleUnknown {
		identity.Role = credentials.RoleUser
	}

	c.store.Set(credentials.SessionUpdate(payload.Access, payload.Refresh, identity.UserID, identity.Role))
	return identity, nil
}

// ListResources returns resources, optionally restricted to kind.
func (c *Client) ListResources(ctx context.Context, kind ResourceKind) ([]Resource, error) {
	const op = "ListResources"
	query := url.Values{}
	if kind != "" {
		if !kind.Valid() {
			return nil, invalidArgument(op, "kind", "kind must be Room or Equipment")
		}
		query.Set("type", kind.wire())
	}

	resp, err := c.do(ctx, transport.Request{Op: op, Method: http.MethodGet, Path: "/resources/", Query: query})
	if err != nil {
		return nil, err
	}
	dtos, err := decodeList[resourceDTO](resp.Body, "resources")
	if err != nil {
		return nil, malformed(op, err)
	}
	resources := make([]Resource, 0, len(dtos))
	for _, dto := range dtos {
		resource, err := dto.toDomain()
		if err != nil {
			return nil, malformed(op, err)
		}
		resources = append(resources, resource)
	}
	return resources, nil
}

// CreateResource validates spec locally before submitting it.
func (c *Client) CreateResource(ctx context.Context, spec ResourceSpec) (Resource, error) {
	const op = "CreateResource"
	if err := validateResourceSpec(op, spec); err != nil {
		return Resource{}, err
	}

	resp, err := c.do(ctx, transport.Request{
		Op:     op,
		Method: http.MethodPost,
		Path:   "/resources/create/",
		Body: createResourceBody{
			Name:        spec.Name,
			Type:        spec.Kind.wire(),
			MaxBookings: spec.MaxConcurrentBookings,
			ColorCode:   spec.ColorTag,
		},
	})
	if err != nil {
		return Resource{}, err
	}
	dto, found, err := decodeItem[resourceDTO](resp.Body, "resource")
	if err != nil || !found {
		return Resource{}, malformed(op, errOr(err, "resource missing from response"))
	}
	resource, err := dto.toDomain()
	if err != nil {
		return Resource{}, malformed(op, err)
	}
	return resource, nil
}

// ListTimeSlots returns slots in the order the server provides. When both
// filters are set, slots of other resources are dropped.
func (c *Client) ListTimeSlots(ctx context.Context, q TimeSlotQuery) ([]TimeSlot, error) {
	const op = "ListTimeSlots"
	query := url.Values{}
	if q.ResourceID > 0 {
		query.Set("resource_id", strconv.FormatInt(q.ResourceID, 10))
	}
	if !q.Date.IsZero() {
		query.Set("date", q.Date.Format(dateLayout))
	}

	resp, err := c.do(ctx, transport.Request{Op: op, Method: http.MethodGet, Path: "/timeslots/", Query: query})
	if err != nil {
		return nil, err
	}
	dtos, err := decodeList[timeSlotDTO](resp.Body, "timeslots")
	if err != nil {
		return nil, malformed(op, err)
	}
	slots := make([]TimeSlot, 0, len(dtos))
	for _, dto := range dtos {
		slot, err := dto.toDomain()
		if err != nil {
			return nil, malformed(op, err)
		}
		if q.ResourceID > 0 && slot.ResourceID != q.ResourceID {
			continue
		}
		slots = append(slots, slot)
	}
	return slots, nil
}

// GenerateTimeSlots asks the server to create slots. It is a privileged
// operation; a caller without the role receives an authorization error.
func (c *Client) GenerateTimeSlots(ctx context.Context, req GenerateSlotsRequest) (string, error) {
	const op = "GenerateTimeSlots"
	if err := validateGenerateSlots(op, req); err != nil {
		return "", err
	}

	resp, err := c.do(ctx, transport.Request{
		Op:     op,
		Method: http.MethodPost,
		Path:   "/timeslots/generate/",
		Body: generateSlotsBody{
			ResourceID:      req.ResourceID,
			StartDate:       req.StartDate.Format(dateLayout),
			EndDate:         req.EndDate.Format(dateLayout),
			DurationMinutes: req.DurationMinutes,
		},
	})
	if err != nil {
		return "", err
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := decodeInto(resp.Body, &body); err != nil {
		// The slots exist either way; only the confirmation text is lost.
		logging.Component(ctx, c.logger, "service", "API", op).
			DebugContext(ctx, "generation message unreadable", "error", err)
	}
	return body.Message, nil
}

// ListReservations returns the caller's reservations, optionally filtered by status.
func (c *Client) ListReservations(ctx context.Context, status ReservationStatus) ([]Reservation, error) {
	const op = "ListReservations"
	query := url.Values{}
	if status != "" {
		if !status.Valid() {
			return nil, invalidArgument(op, "status", "status must be Active or Cancelled")
		}
		query.Set("status", status.wire())
	}

	resp, err := c.do(ctx, transport.Request{Op: op, Method: http.MethodGet, Path: "/reservations/", Query: query})
	if err != nil {
		return nil, err
	}
	dtos, err := decodeList[reservationDTO](resp.Body, "reservations")
	if err != nil {
		return nil, malformed(op, err)
	}
	reservations := make([]Reservation, 0, len(dtos))
	for _, dto := range dtos {
		reservation, err := dto.toDomain()
		if err != nil {
			return nil, malformed(op, err)
		}
		reservations = append(reservations, reservation)
	}
	return reservations, nil
}

// CreateReservation books a slot. A slot taken by a concurrent booking is
// reported as a conflict.
func (c *Client) CreateReservation(ctx context.Context, req NewReservation) (Reservation, error) {
	const op = "CreateReservation"
	if err := validateNewReservation(op, req); err != nil {
		return Reservation{}, err
	}

	resp, err := c.do(ctx, transport.Request{
		Op:     op,
		Method: http.MethodPost,
		Path:   "/reservations/create/",
		Body: createReservationBody{
			UserID:     c.store.Get().UserID,
			ResourceID: req.ResourceID,
			TimeSlotID: req.TimeSlotID,
			Notes:      req.Notes,
		},
	})
	if err != nil {
		return Reservation{}, reclassify(err, apperror.KindConflict, http.StatusBadRequest, http.StatusConflict)
	}
	dto, found, err := decodeItem[reservationDTO](resp.Body, "reservation")
	if err != nil || !found {
		return Reservation{}, malformed(op, errOr(err, "reservation missing from response"))
	}
	reservation, err := dto.toDomain()
	if err != nil {
		return Reservation{}, malformed(op, err)
	}
	return reservation, nil
}

// CancelReservation cancels reservation id. The returned value reflects the
// server's record when it echoes one.
func (c *Client) CancelReservation(ctx context.Context, id int64) (Reservation, error) {
	const op = "CancelReservation"
	if id <= 0 {
		return Reservation{}, invalidArgument(op, "id", "reservation id is required")
	}

	resp, err := c.do(ctx, transport.Request{
		Op:     op,
		Method: http.MethodPost,
		Path:   fmt.Sprintf("/reservations/%d/cancel/", id),
		Body:   cancelReservationBody{UserID: c.store.Get().UserID},
	})
	if err != nil {
		return Reservation{}, err
	}
	dto, found, err := decodeItem[reservationDTO](resp.Body, "reservation")
	if err != nil {
		return Reservation{}, malformed(op, err)
	}
	if !found {
		return Reservation{ID: id, Status: ReservationCancelled}, nil
	}
	reservation, err := dto.toDomain()
	if err != nil {
		return Reservation{}, malformed(op, err)
	}
	return reservation, nil
}

func (c *Client) do(ctx context.Context, req transport.Request) (resp transport.Response, err error) {
	logger := logging.Component(ctx, c.logger, "service", "API", req.Op)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "operation failed", "error", err, "error_kind", apperror.Label(err))
			return
		}
		logger.DebugContext(ctx, "operation completed", "status", resp.Status)
	}()
	return c.exec.Do(ctx, req)
}
