package application

import "errors"

var (
	// ErrInvalidTransition is returned when a booking step is requested out of order.
	ErrInvalidTransition = errors.New("application: invalid booking transition")
	// ErrSlotNotOffered is returned when selecting a slot that is not among the bookable candidates.
	ErrSlotNotOffered = errors.New("application: time slot is not offered")
	// ErrNoSlotSelected is returned when submitting a draft without a time slot.
	ErrNoSlotSelected = errors.New("application: no time slot selected")
	// ErrNotAuthenticated is returned by local gates when no session exists.
	ErrNotAuthenticated = errors.New("application: not authenticated")
)
