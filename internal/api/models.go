package api

import (
	"fmt"
	"strings"
	"time"
)

// ResourceKind is the display form of a resource category.
type ResourceKind string

const (
	ResourceKindRoom      ResourceKind = "Room"
	ResourceKindEquipment ResourceKind = "Equipment"
)

var resourceKindWire = map[ResourceKind]string{
	ResourceKindRoom:      "ROOM",
	ResourceKindEquipment: "EQUIPMENT",
}

// ParseResourceKind accepts either the display or the wire form, ignoring case.
func ParseResourceKind(value string) (ResourceKind, error) {
	trimmed := strings.TrimSpace(value)
	for kind, wire := range resourceKindWire {
		if strings.EqualFold(trimmed, string(kind)) || strings.EqualFold(trimmed, wire) {
			return kind, nil
		}
	}
	return "", fmt.Errorf("unknown resource kind %q", value)
}

// Valid reports whether k is a known kind.
func (k ResourceKind) Valid() bool {
	_, ok := resourceKindWire[k]
	return ok
}

func (k ResourceKind) wire() string {
	return resourceKindWire[k]
}

// ReservationStatus is the display form of a reservation lifecycle state.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "Active"
	ReservationCancelled ReservationStatus = "Cancelled"
)

var reservationStatusWire = map[ReservationStatus]string{
	ReservationActive:    "ACTIVE",
	ReservationCancelled: "CANCELLED",
}

// ParseReservationStatus accepts either the display or the wire form, ignoring case.
func ParseReservationStatus(value string) (ReservationStatus, error) {
	trimmed := strings.TrimSpace(value)
	for status, wire := range reservationStatusWire {
		if strings.EqualFold(trimmed, string(status)) || strings.EqualFold(trimmed, wire) {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown reservation status %q", value)
}

// Valid reports whether s is a known status.
func (s ReservationStatus) Valid() bool {
	_, ok := reservationStatusWire[s]
	return ok
}

func (s ReservationStatus) wire() string {
	return reservationStatusWire[s]
}

// Resource is a bookable room or piece of equipment.
type Resource struct {
	ID                    int64
	Name                  string
	Kind                  ResourceKind
	MaxConcurrentBookings int
	ColorTag              string
	// CreatedAt is zero when the server omits it.
	CreatedAt time.Time
}

// TimeSlot is a bookable interval of a resource. Availability is computed by
// the server and never modified locally.
type TimeSlot struct {
	ID          int64
	ResourceID  int64
	Start       time.Time
	End         time.Time
	IsAvailable bool
}

// Duration returns End minus Start.
func (s TimeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// DurationMinutes returns the slot length in whole minutes.
func (s TimeSlot) DurationMinutes() int {
	return int(s.Duration() / time.Minute)
}

// Bookable reports whether the slot may be offered for a new reservation at now.
func (s TimeSlot) Bookable(now time.Time) bool {
	return s.IsAvailable && s.Start.After(now)
}

// Reservation is a user's booking of a time slot.
type Reservation struct {
	ID         int64
	UserID     int64
	ResourceID int64
	TimeSlotID int64
	Status     ReservationStatus
	Notes      string
	CreatedAt  time.Time
}

// ResourceSpec is the payload for creating a resource.
type ResourceSpec struct {
	Name                  string
	Kind                  ResourceKind
	MaxConcurrentBookings int
	ColorTag              string
}

// TimeSlotQuery filters ListTimeSlots. Zero fields are omitted.
type TimeSlotQuery struct {
	ResourceID int64
	Date       time.Time
}

// GenerateSlotsRequest asks the server to create slots for a resource over a
// date range. DurationMinutes of zero lets the server pick its default.
type GenerateSlotsRequest struct {
	ResourceID      int64
	StartDate       time.Time
	EndDate         time.Time
	DurationMinutes int
}

// NewReservation is the payload for creating a reservation.
type NewReservation struct {
	ResourceID int64
	TimeSlotID int64
	Notes      string
}
