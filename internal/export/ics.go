// Package export renders the caller's reservations as an iCalendar feed.
package export

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/example/gymdesk-client/internal/api"
)

const (
	productID     = "-//GymDesk//Reservation Export//EN"
	icsTimestamp  = "20060102T150405Z"
	maxLineOctets = 75
)

// uidNamespace scopes the name-based event UIDs so the same reservation
// always exports with the same identifier.
var uidNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://gymdesk.example/reservations"))

// Source provides the views joined into the export.
type Source interface {
	Reservations(ctx context.Context, status api.ReservationStatus) ([]api.Reservation, error)
	Resources(ctx context.Context, kind api.ResourceKind) ([]api.Resource, error)
	TimeSlots(ctx context.Context, q api.TimeSlotQuery) ([]api.TimeSlot, error)
}

// Range bounds the exported events by slot start. Zero bounds are open.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && !t.Before(r.To) {
		return false
	}
	return true
}

// Event is one exported reservation.
type Event struct {
	ReservationID int64
	Resource      string
	Start         time.Time
	End           time.Time
	Notes         string
	Created       time.Time
}

// Options configures ICS.
type Options struct {
	Range        Range
	CalendarName string
	// Now stamps DTSTAMP; it defaults to time.Now.
	Now func() time.Time
}

// ErrInvalidRange is returned when the range ends before it starts.
var ErrInvalidRange = errors.New("export: range end precedes start")

// Events joins the active reservations with their resource names and slot
// times. Reservations whose slot cannot be found are skipped.
func Events(ctx context.Context, src Source, r Range) ([]Event, error) {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return nil, ErrInvalidRange
	}

	reservations, err := src.Reservations(ctx, api.ReservationActive)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	if len(reservations) == 0 {
		return nil, nil
	}

	resources, err := src.Resources(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	names := make(map[int64]string, len(resources))
	for _, resource := range resources {
		names[resource.ID] = resource.Name
	}

	slots := make(map[int64]api.TimeSlot)
	loaded := make(map[int64]bool)
	events := make([]Event, 0, len(reservations))
	for _, reservation := range reservations {
		if reservation.Status != api.ReservationActive {
			continue
		}
		if !loaded[reservation.ResourceID] {
			list, err := src.TimeSlots(ctx, api.TimeSlotQuery{ResourceID: reservation.ResourceID})
			if err != nil {
				return nil, fmt.Errorf("list time slots for resource %d: %w", reservation.ResourceID, err)
			}
			for _, slot := range list {
				slots[slot.ID] = slot
			}
			loaded[reservation.ResourceID] = true
		}

		slot, ok := slots[reservation.TimeSlotID]
		if !ok || !r.contains(slot.Start) {
			continue
		}
		name := names[reservation.ResourceID]
		if name == "" {
			name = fmt.Sprintf("Resource %d", reservation.ResourceID)
		}
		events = append(events, Event{
			ReservationID: reservation.ID,
			Resource:      name,
			Start:         slot.Start,
			End:           slot.End,
			Notes:         reservation.Notes,
			Created:       reservation.CreatedAt,
		})
	}

	sort.SliceStable(events, func(i, j int) bool { return events[i].Start.Before(events[j].Start) })
	return events, nil
}

// ICS writes the caller's active reservations within opts.Range to w.
func ICS(ctx context.Context, w io.Writer, src Source, opts Options) (int, error) {
	events, err := Events(ctx, src, opts.Range)
	if err != nil {
		return 0, err
	}
	return len(events), Write(w, events, opts)
}

// Write renders events as a VCALENDAR with CRLF line endings and lines
// folded at 75 octets.
func Write(w io.Writer, events []Event, opts Options) error {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	stamp := now().UTC().Format(icsTimestamp)

	bw := bufio.NewWriter(w)
	lw := &lineWriter{w: bw}
	lw.property("BEGIN", "VCALENDAR")
	lw.property("VERSION", "2.0")
	lw.property("PRODID", productID)
	lw.property("CALSCALE", "GREGORIAN")
	if opts.CalendarName != "" {
		lw.property("X-WR-CALNAME", escapeText(opts.CalendarName))
	}
	for _, event := range events {
		lw.property("BEGIN", "VEVENT")
		lw.property("UID", eventUID(event.ReservationID))
		lw.property("DTSTAMP", stamp)
		if !event.Created.IsZero() {
			lw.property("CREATED", event.Created.UTC().Format(icsTimestamp))
		}
		lw.property("DTSTART", event.Start.UTC().Format(icsTimestamp))
		lw.property("DTEND", event.End.UTC().Format(icsTimestamp))
		lw.property("SUMMARY", escapeText(event.Resource))
		lw.property("LOCATION", escapeText(event.Resource))
		if event.Notes != "" {
			lw.property("DESCRIPTION", escapeText(event.Notes))
		}
		lw.property("STATUS", "CONFIRMED")
		lw.property("END", "VEVENT")
	}
	lw.property("END", "VCALENDAR")

	if lw.err != nil {
		return lw.err
	}
	return bw.Flush()
}

func eventUID(reservationID int64) string {
	id := uuid.NewSHA1(uidNamespace, []byte(fmt.Sprintf("reservation:%d", reservationID)))
	return id.String() + "@gymdesk"
}

// escapeText applies the TEXT value escaping of RFC 5545 section 3.3.11.
func escapeText(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for i := 0; i < len(value); i++ {
		switch c := value[i]; c {
		case '\\':
			b.WriteString(`\\`)
		case ';':
			b.WriteString(`\;`)
		case ',':
			b.WriteString(`\,`)
		case '\r':
			if i+1 < len(value) && value[i+1] == '\n' {
				i++
			}
			b.WriteString(`\n`)
		case '\n':
			b.WriteString(`\n`)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

type lineWriter struct {
	w   *bufio.Writer
	err error
}

func (l *lineWriter) property(name, value string) {
	if l.err != nil {
		return
	}
	line := name + ":" + value
	for first := true; ; first = false {
		limit := maxLineOctets
		if !first {
			// Continuation lines lead with a space that counts toward the limit.
			limit--
			if _, l.err = l.w.WriteString(" "); l.err != nil {
				return
			}
		}
		if len(line) <= limit {
			_, l.err = l.w.WriteString(line + "\r\n")
			return
		}
		cut := limit
		// Never split a multi-byte character.
		for cut > 0 && !utf8.RuneStart(line[cut]) {
			cut--
		}
		if _, l.err = l.w.WriteString(line[:cut] + "\r\n"); l.err != nil {
			return
		}
		line = line[cut:]
	}
}
