package api

import (
	"regexp"
	"strings"

	"github.com/example/gymdesk-client/internal/apperror"
)

const (
	minResourceNameLength = 2
	minConcurrentBookings = 1
	maxConcurrentBookings = 100
	minSlotMinutes        = 15
	maxSlotMinutes        = 24 * 60
)

var colorTagPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

func validateResourceSpec(op string, spec ResourceSpec) error {
	vErr := &apperror.ValidationError{Op: op}

	if len(strings.TrimSpace(spec.Name)) < minResourceNameLength {
		vErr.Add("name", "name must be at least 2 characters")
	}
	if !spec.Kind.Valid() {
		vErr.Add("kind", "kind must be Room or Equipment")
	}
	if spec.MaxConcurrentBookings < minConcurrentBookings {
		vErr.Add("max_bookings", "max bookings must be at least 1")
	} else if spec.MaxConcurrentBookings > maxConcurrentBookings {
		vErr.Add("max_bookings", "max bookings must not exceed 100")
	}
	if !colorTagPattern.MatchString(spec.ColorTag) {
		vErr.Add("color_code", "color must use the #RRGGBB format")
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func validateGenerateSlots(op string, req GenerateSlotsRequest) error {
	vErr := &apperror.ValidationError{Op: op}

	if req.ResourceID <= 0 {
		vErr.Add("resource_id", "resource is required")
	}
	if req.StartDate.IsZero() || req.EndDate.IsZero() {
		vErr.Add("date_range", "start and end dates are required")
	} else if req.EndDate.Before(req.StartDate) {
		vErr.Add("date_range", "end date must not precede start date")
	}
	if req.DurationMinutes != 0 && (req.DurationMinutes < minSlotMinutes || req.DurationMinutes > maxSlotMinutes) {
		vErr.Add("duration_minutes", "duration must be between 15 minutes and 24 hours")
	}

	if vErr.HasErrors() {
		return vErr
	}
	return nil
}

func validateNewReservation(op string, req NewReservation) error {
	vErr := &apperror.ValidationError{Op: op}
	if req.ResourceID <= 0 {
		vErr.Add("resource_id", "resource is required")
	}
	if req.TimeSlotID <= 0 {
		vErr.Add("timeslot_id", "time slot is required")
	}
	if vErr.HasErrors() {
		return vErr
	}
	return nil
}
