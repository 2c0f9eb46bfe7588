package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/gymdesk-client/internal/api"
	"github.com/example/gymdesk-client/internal/apperror"
)

// BookingStep is a stage of the booking wizard.
type BookingStep int

const (
	StepSelectResource BookingStep = iota
	StepSelectSlot
	StepConfirm
	StepSubmitting
	StepDone
)

func (s BookingStep) String() string {
	switch s {
	case StepSelectResource:
		return "select_resource"
	case StepSelectSlot:
		return "select_slot"
	case StepConfirm:
		return "confirm"
	case StepSubmitting:
		return "submitting"
	case StepDone:
		return "done"
	default:
		return fmt.Sprintf("step(%d)", int(s))
	}
}

// BookingDraft is the in-progress selection. It is never persisted.
type BookingDraft struct {
	Resource *api.Resource
	Slot     *api.TimeSlot
	Date     time.Time
	Notes    string
}

func (d BookingDraft) clone() BookingDraft {
	out := BookingDraft{Date: d.Date, Notes: d.Notes}
	if d.Resource != nil {
		resource := *d.Resource
		out.Resource = &resource
	}
	if d.Slot != nil {
		slot := *d.Slot
		out.Slot = &slot
	}
	return out
}

// BookingState is a snapshot of the workflow.
type BookingState struct {
	Step       BookingStep
	Draft      BookingDraft
	Candidates []api.TimeSlot
	// Err is the failure of the last submission, shown on the confirm step.
	Err error
	// Reservation is set once the workflow reaches StepDone.
	Reservation *api.Reservation
}

// BookingDeps captures the collaborators of a BookingWorkflow.
type BookingDeps struct {
	Slots    SlotSource
	Creator  ReservationCreator
	Views    *ViewCache
	Notifier Notifier
	Session  SessionObserver
	Now      func() time.Time
	Logger   *slog.Logger
}

// BookingWorkflow drives the resource, slot and confirm wizard. It is safe
// for concurrent use; a submission in flight keeps running after Dismiss and
// its outcome still invalidates views and is reported to the notifier.
type BookingWorkflow struct {
	mu sync.Mutex

	slots    SlotSource
	creator  ReservationCreator
	views    *ViewCache
	notifier Notifier
	session  SessionObserver
	now      func() time.Time
	logger   *slog.Logger

	step        BookingStep
	draft       BookingDraft
	candidates  []api.TimeSlot
	lastErr     error
	reservation *api.Reservation
	// generation changes whenever the draft is discarded so that late
	// results of an abandoned draft do not touch the new one.
	generation uint64
}

// NewBookingWorkflow constructs a workflow positioned at StepSelectResource.
func NewBookingWorkflow(deps BookingDeps) *BookingWorkflow {
	notifier := deps.Notifier
	if notifier == nil {
		notifier = discardNotifier{}
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &BookingWorkflow{
		slots:    deps.Slots,
		creator:  deps.Creator,
		views:    deps.Views,
		notifier: notifier,
		session:  deps.Session,
		now:      now,
		logger:   defaultLogger(deps.Logger),
	}
}

// State returns a copy of the current workflow state.
func (w *BookingWorkflow) State() BookingState {
	w.mu.Lock()
	defer w.mu.Unlock()

	state := BookingState{
		Step:       w.step,
		Draft:      w.draft.clone(),
		Candidates: cloneSlice(w.candidates),
		Err:        w.lastErr,
	}
	if w.reservation != nil {
		reservation := *w.reservation
		state.Reservation = &reservation
	}
	return state
}

// SelectResource picks the resource to book and advances to StepSelectSlot.
func (w *BookingWorkflow) SelectResource(resource api.Resource) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepSelectResource {
		return w.invalidTransition("select resource")
	}
	w.draft.Resource = &resource
	w.draft.Slot = nil
	w.candidates = nil
	w.lastErr = nil
	w.step = StepSelectSlot
	return nil
}

// LoadSlots fetches the slot candidates of the selected resource on date.
// Only available slots starting after now are offered.
func (w *BookingWorkflow) LoadSlots(ctx context.Context, date time.Time) ([]api.TimeSlot, error) {
	w.mu.Lock()
	if w.step != StepSelectSlot || w.draft.Resource == nil {
		w.mu.Unlock()
		return nil, w.invalidTransition("load slots")
	}
	resourceID := w.draft.Resource.ID
	generation := w.generation
	w.draft.Date = date
	w.mu.Unlock()

	epoch := w.epoch()
	slots, err := w.slots.TimeSlots(ctx, api.TimeSlotQuery{ResourceID: resourceID, Date: date})
	if err != nil {
		w.observe(epoch, err)
		w.notifier.Failure(ctx, err)
		return nil, err
	}

	now := w.now()
	offered := make([]api.TimeSlot, 0, len(slots))
	for _, slot := range slots {
		if slot.ResourceID == resourceID && slot.Bookable(now) {
			offered = append(offered, slot)
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	// The draft moved on while loading; the result belongs to nobody.
	if w.generation != generation || w.step != StepSelectSlot || w.draft.Resource == nil || w.draft.Resource.ID != resourceID {
		return cloneSlice(offered), nil
	}
	w.candidates = offered
	return cloneSlice(offered), nil
}

// SelectSlot picks one of the offered candidates and advances to StepConfirm.
// It is also accepted on the confirm step after a conflict cleared the slot.
func (w *BookingWorkflow) SelectSlot(slotID int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step != StepSelectSlot && !(w.step == StepConfirm && w.draft.Slot == nil) {
		return w.invalidTransition("select slot")
	}
	for _, candidate := range w.candidates {
		if candidate.ID == slotID {
			slot := candidate
			w.draft.Slot = &slot
			w.lastErr = nil
			w.step = StepConfirm
			return nil
		}
	}
	return ErrSlotNotOffered
}

// SetNotes records free text for the reservation.
func (w *BookingWorkflow) SetNotes(notes string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.step == StepSubmitting || w.step == StepDone {
		return w.invalidTransition("set notes")
	}
	w.draft.Notes = notes
	return nil
}

// Back returns to the previous step. Leaving the slot step discards the
// resource so a slot chosen for one resource never survives a switch to another.
func (w *BookingWorkflow) Back() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.step {
	case StepConfirm:
		w.draft.Slot = nil
		w.lastErr = nil
		w.step = StepSelectSlot
	case StepSelectSlot:
		w.draft.Resource = nil
		w.draft.Slot = nil
		w.candidates = nil
		w.step = StepSelectResource
	default:
		return w.invalidTransition("go back")
	}
	return nil
}

// Submit creates the reservation for the confirmed draft. The call is not
// cancelled with ctx. On success the draft is cleared and the workflow is
// done; on failure it stays on the confirm step carrying the error. A
// conflict additionally clears the stale slot, which must be re-selected
// before another submission. Submissions are never retried automatically.
func (w *BookingWorkflow) Submit(ctx context.Context) (reservation api.Reservation, err error) {
	w.mu.Lock()
	if w.step != StepConfirm {
		w.mu.Unlock()
		return api.Reservation{}, w.invalidTransition("submit")
	}
	if w.draft.Resource == nil || w.draft.Slot == nil {
		w.mu.Unlock()
		return api.Reservation{}, ErrNoSlotSelected
	}
	resource, slot, notes := *w.draft.Resource, *w.draft.Slot, w.draft.Notes
	if !slot.Bookable(w.now()) {
		w.mu.Unlock()
		return api.Reservation{}, ErrSlotNotOffered
	}
	generation := w.generation
	w.step = StepSubmitting
	w.lastErr = nil
	w.mu.Unlock()

	logger := serviceLogger(ctx, w.logger, "BookingWorkflow", "Submit",
		"resource_id", resource.ID,
		"timeslot_id", slot.ID,
	)
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "reservation failed", "error", err, "error_kind", apperror.Label(err))
			return
		}
		logger.InfoContext(ctx, "reservation created", "reservation_id", reservation.ID)
	}()

	epoch := w.epoch()
	reservation, err = w.creator.CreateReservation(context.WithoutCancel(ctx), api.NewReservation{
		ResourceID: resource.ID,
		TimeSlotID: slot.ID,
		Notes:      notes,
	})

	conflict := errors.Is(err, apperror.ErrConflict)
	switch {
	case err == nil:
		w.views.Invalidate(append([]string{viewReservations + "|"}, timeSlotPrefixes(resource.ID)...)...)
		w.notifier.Success(ctx, fmt.Sprintf("Reserved %s at %s", resource.Name, slot.Start.Format("2006-01-02 15:04")))
	case conflict:
		w.views.Invalidate(timeSlotPrefixes(resource.ID)...)
		w.notifier.Failure(ctx, err)
	default:
		w.observe(epoch, err)
		w.notifier.Failure(ctx, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != generation {
		return reservation, err
	}
	if err != nil {
		w.step = StepConfirm
		w.lastErr = err
		if conflict {
			w.draft.Slot = nil
			w.candidates = removeSlot(w.candidates, slot.ID)
		}
		return api.Reservation{}, err
	}

	w.step = StepDone
	w.draft = BookingDraft{}
	w.candidates = nil
	w.reservation = &reservation
	return reservation, nil
}

// Dismiss discards the draft from any step and starts over.
func (w *BookingWorkflow) Dismiss() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.generation++
	w.step = StepSelectResource
	w.draft = BookingDraft{}
	w.candidates = nil
	w.lastErr = nil
	w.reservation = nil
}

func (w *BookingWorkflow) invalidTransition(action string) error {
	return fmt.Errorf("%w: cannot %s from %s", ErrInvalidTransition, action, w.step)
}

func (w *BookingWorkflow) epoch() uint64 {
	if w.session == nil {
		return 0
	}
	return w.session.Epoch()
}

func (w *BookingWorkflow) observe(epoch uint64, err error) {
	if w.session != nil {
		w.session.Observe(epoch, err)
	}
}

func removeSlot(slots []api.TimeSlot, id int64) []api.TimeSlot {
	out := slots[:0:0]
	for _, slot := range slots {
		if slot.ID != id {
			out = append(out, slot)
		}
	}
	return out
}
