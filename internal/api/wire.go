package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Timestamps arrive either zone qualified or naive; naive values are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	dateLayout,
}

func parseWireTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, trimmed, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", value)
}

func parseOptionalTime(value *string) (time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return time.Time{}, nil
	}
	return parseWireTime(*value)
}

type authPayload struct {
	Access  string          `json:"access"`
	Refresh string          `json:"refresh"`
	UserID  int64           `json:"user_id"`
	Role    string          `json:"role"`
	User    *authUserFields `json:"user"`
}

type authUserFields struct {
	ID   int64  `json:"id"`
	Role string `json:"role"`
}

type resourceDTO struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	MaxBookings int     `json:"max_bookings"`
	ColorCode   string  `json:"color_code"`
	CreatedAt   *string `json:"created_at"`
}

func (d resourceDTO) toDomain() (Resource, error) {
	kind, err := ParseResourceKind(d.Type)
	if err != nil {
		return Resource{}, err
	}
	created, err := parseOptionalTime(d.CreatedAt)
	if err != nil {
		return Resource{}, err
	}
	return Resource{
		ID:                    d.ID,
		Name:                  d.Name,
		Kind:                  kind,
		MaxConcurrentBookings: d.MaxBookings,
		ColorTag:              d.ColorCode,
		CreatedAt:             created,
	}, nil
}

type createResourceBody struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	MaxBookings int    `json:"max_bookings"`
	ColorCode   string `json:"color_code"`
}

type timeSlotDTO struct {
	ID          int64  `json:"id"`
	ResourceID  int64  `json:"resource_id"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

func (d timeSlotDTO) toDomain() (TimeSlot, error) {
	start, err := parseWireTime(d.StartTime)
	if err != nil {
		return TimeSlot{}, err
	}
	end, err := parseWireTime(d.EndTime)
	if err != nil {
		return TimeSlot{}, err
	}
	return TimeSlot{
		ID:          d.ID,
		ResourceID:  d.ResourceID,
		Start:       start,
		End:         end,
		IsAvailable: d.IsAvailable,
	}, nil
}

type generateSlotsBody struct {
	ResourceID      int64  `json:"resource_id"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
}

type reservationDTO struct {
	ID         int64   `json:"id"`
	UserID     int64   `json:"user_id"`
	ResourceID int64   `json:"resource_id"`
	TimeSlotID int64   `json:"time_slot_id"`
	TimeslotID int64   `json:"timeslot_id"`
	Status     string  `json:"status"`
	Notes      *string `json:"notes"`
	CreatedAt  *string `json:"created_at"`
}

func (d reservationDTO) toDomain() (Reservation, error) {
	status, err := ParseReservationStatus(d.Status)
	if err != nil {
		return Reservation{}, err
	}
	created, err := parseOptionalTime(d.CreatedAt)
	if err != nil {
		return Reservation{}, err
	}
	slotID := d.TimeSlotID
	if slotID == 0 {
		slotID = d.TimeslotID
	}
	reservation := Reservation{
		ID:         d.ID,
		UserID:     d.UserID,
		ResourceID: d.ResourceID,
		TimeSlotID: slotID,
		Status:     status,
		CreatedAt:  created,
	}
	if d.Notes != nil {
		reservation.Notes = *d.Notes
	}
	return reservation, nil
}

type createReservationBody struct {
	UserID     int64  `json:"user_id,omitempty"`
	ResourceID int64  `json:"resource_id"`
	TimeSlotID int64  `json:"timeslot_id"`
	Notes      string `json:"notes,omitempty"`
}

type cancelReservationBody struct {
	UserID int64 `json:"user_id,omitempty"`
}

// decodeList reads a collection that is either the bare payload or nested
// under key inside an envelope.
func decodeList[T any](body json.RawMessage, key string) ([]T, error) {
	payload := bytes.TrimSpace(body)
	if len(payload) > 0 && payload[0] == '{' {
		var envelope map[string]json.RawMessage
		if err := json.Unmarshal(payload, &envelope); err != nil {
			return nil, err
		}
		nested, ok := envelope[key]
		if !ok || bytes.Equal(bytes.TrimSpace(nested), []byte("null")) {
			return nil, nil
		}
		payload = nested
	}
	var items []T
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// decodeItem reads a single object that is either the bare payload or nested
// under key. found is false when neither form carries an object.
func decodeItem[T any](body json.RawMessage, key string) (item T, found bool, err error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return item, false, err
	}
	payload := json.RawMessage(body)
	if nested, ok := envelope[key]; ok {
		payload = nested
	} else if _, hasID := envelope["id"]; !hasID {
		return item, false, nil
	}
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		return item, false, nil
	}
	if err := json.Unmarshal(payload, &item); err != nil {
		return item, false, err
	}
	return item, true, nil
}
