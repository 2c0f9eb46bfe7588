package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/example/gymdesk-client/internal/api"
	"github.com/example/gymdesk-client/internal/application"
	"github.com/example/gymdesk-client/internal/export"
)

const displayTime = "2006-01-02 15:04"

func parseFlags(fs *pflag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", errUsage, fs.Args())
	}
	return nil
}

func requireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: --%s is required", errUsage, name)
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := errors.Join(requireFlag("email", *email), requireFlag("password", *password)); err != nil {
		return err
	}

	session, err := a.session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Logged in as user %d (%s)\n", session.UserID, session.Role)
	return nil
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("register")
	email := fs.String("email", "", "account email")
	username := fs.String("username", "", "display name")
	password := fs.String("password", "", "account password")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if err := errors.Join(requireFlag("email", *email), requireFlag("username", *username), requireFlag("password", *password)); err != nil {
		return err
	}

	session, err := a.session.Register(ctx, *email, *username, *password)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Registered user %d (%s)\n", session.UserID, session.Role)
	return nil
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := parseFlags(a.flagSet("logout"), args); err != nil {
		return err
	}
	a.session.Logout(ctx)
	fmt.Fprintln(a.stdout, "Logged out")
	return nil
}

func runWhoami(_ context.Context, a *app, args []string) error {
	if err := parseFlags(a.flagSet("whoami"), args); err != nil {
		return err
	}
	session := a.session.Current()
	if !session.Authenticated() {
		fmt.Fprintln(a.stdout, "Not logged in")
		return nil
	}
	fmt.Fprintf(a.stdout, "User %d (%s)\n", session.UserID, session.Role)
	return nil
}

func runResources(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("resources")
	kindFlag := fs.String("kind", "", "filter by kind (Room or Equipment)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var kind api.ResourceKind
	if *kindFlag != "" {
		parsed, err := api.ParseResourceKind(*kindFlag)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		kind = parsed
	}

	resources, err := a.catalog.Resources(ctx, kind)
	if err != nil {
		return err
	}
	if len(resources) == 0 {
		fmt.Fprintln(a.stdout, "No resources")
		return nil
	}
	tw := newTable(a.stdout)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tMAX BOOKINGS\tCOLOR")
	for _, resource := range resources {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", resource.ID, resource.Name, resource.Kind, resource.MaxConcurrentBookings, resource.ColorTag)
	}
	return tw.Flush()
}

func runCreateResource(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("create-resource")
	name := fs.String("name", "", "resource name")
	kindFlag := fs.String("kind", "", "Room or Equipment")
	maxBookings := fs.Int("max-bookings", 1, "concurrent bookings per slot")
	color := fs.String("color", "", "display colour as #RRGGBB")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if !a.session.Current().IsAdmin() {
		fmt.Fprintln(a.stderr, "warning: creating resources usually requires an administrator")
	}

	kind, err := api.ParseResourceKind(*kindFlag)
	if err != nil && *kindFlag != "" {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	resource, err := a.catalog.CreateResource(ctx, api.ResourceSpec{
		Name:                  *name,
		Kind:                  kind,
		MaxConcurrentBookings: *maxBookings,
		ColorTag:              *color,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Created %s %q with id %d\n", resource.Kind, resource.Name, resource.ID)
	return nil
}

func runSlots(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("slots")
	resourceID := fs.Int64("resource-id", 0, "resource to list")
	dateFlag := fs.String("date", "", "day to list (YYYY-MM-DD)")
	all := fs.Bool("all", false, "include unavailable and past slots")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	date, err := parseDate("date", *dateFlag)
	if err != nil {
		return err
	}
	if *resourceID <= 0 && date.IsZero() {
		return fmt.Errorf("%w: --resource-id or --date is required", errUsage)
	}

	slots, err := a.catalog.TimeSlots(ctx, api.TimeSlotQuery{ResourceID: *resourceID, Date: date})
	if err != nil {
		return err
	}
	if !*all {
		now := a.now()
		bookable := slots[:0]
		for _, slot := range slots {
			if slot.Bookable(now) {
				bookable = append(bookable, slot)
			}
		}
		slots = bookable
	}
	printSlots(a.stdout, slots)
	return nil
}

func printSlots(w io.Writer, slots []api.TimeSlot) {
	days := application.GroupSlotsByDay(slots, time.UTC)
	if len(days) == 0 {
		fmt.Fprintln(w, "No time slots")
		return
	}
	for _, day := range days {
		fmt.Fprintln(w, day.Date.Format("Monday 2006-01-02"))
		tw := newTable(w)
		for _, slot := range day.Slots {
			status := "available"
			if !slot.IsAvailable {
				status = "taken"
			}
			fmt.Fprintf(tw, "  %d\t%s-%s\t%d min\tresource %d\t%s\n",
				slot.ID, slot.Start.UTC().Format("15:04"), slot.End.UTC().Format("15:04"),
				slot.DurationMinutes(), slot.ResourceID, status)
		}
		_ = tw.Flush()
	}
}

func runGenerateSlots(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("generate-slots")
	resourceID := fs.Int64("resource-id", 0, "resource to generate slots for")
	startFlag := fs.String("start", "", "first day (YYYY-MM-DD)")
	endFlag := fs.String("end", "", "last day (YYYY-MM-DD)")
	duration := fs.Int("duration", 0, "slot length in minutes (server default when 0)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	start, err := parseDate("start", *startFlag)
	if err != nil {
		return err
	}
	end, err := parseDate("end", *endFlag)
	if err != nil {
		return err
	}

	message, err := a.catalog.GenerateTimeSlots(ctx, api.GenerateSlotsRequest{
		ResourceID:      *resourceID,
		StartDate:       start,
		EndDate:         end,
		DurationMinutes: *duration,
	})
	if err != nil {
		return err
	}
	if message == "" {
		message = "Time slots generated"
	}
	fmt.Fprintln(a.stdout, message)
	return nil
}

func runReservations(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("reservations")
	statusFlag := fs.String("status", "", "filter by status (Active or Cancelled)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	var status api.ReservationStatus
	if *statusFlag != "" {
		parsed, err := api.ParseReservationStatus(*statusFlag)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		status = parsed
	}

	reservations, err := a.catalog.Reservations(ctx, status)
	if err != nil {
		return err
	}
	if len(reservations) == 0 {
		fmt.Fprintln(a.stdout, "No reservations")
		return nil
	}
	tw := newTable(a.stdout)
	fmt.Fprintln(tw, "ID\tRESOURCE\tSLOT\tSTATUS\tNOTES")
	for _, reservation := range reservations {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%s\n", reservation.ID, reservation.ResourceID, reservation.TimeSlotID, reservation.Status, reservation.Notes)
	}
	return tw.Flush()
}

// runBook walks the booking workflow non-interactively. Without --slot-id it
// stops after listing the candidates.
func runBook(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("book")
	resourceID := fs.Int64("resource-id", 0, "resource to book")
	dateFlag := fs.String("date", "", "day of the slot (YYYY-MM-DD)")
	slotID := fs.Int64("slot-id", 0, "slot to reserve")
	notes := fs.String("notes", "", "optional notes")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *resourceID <= 0 {
		return fmt.Errorf("%w: --resource-id is required", errUsage)
	}
	date, err := parseDate("date", *dateFlag)
	if err != nil {
		return err
	}
	if date.IsZero() {
		return fmt.Errorf("%w: --date is required", errUsage)
	}

	resources, err := a.catalog.Resources(ctx, "")
	if err != nil {
		return err
	}
	var resource *api.Resource
	for i := range resources {
		if resources[i].ID == *resourceID {
			resource = &resources[i]
			break
		}
	}
	if resource == nil {
		return fmt.Errorf("%w: resource %d does not exist", errUsage, *resourceID)
	}

	workflow := a.booking
	defer workflow.Dismiss()

	if err := workflow.SelectResource(*resource); err != nil {
		return err
	}
	candidates, err := workflow.LoadSlots(ctx, date)
	if err != nil {
		return err
	}
	if *slotID == 0 {
		fmt.Fprintf(a.stdout, "Bookable slots for %s:\n", resource.Name)
		printSlots(a.stdout, candidates)
		return fmt.Errorf("%w: choose a slot with --slot-id", errUsage)
	}
	if err := workflow.SelectSlot(*slotID); err != nil {
		if errors.Is(err, application.ErrSlotNotOffered) {
			return fmt.Errorf("slot %d cannot be booked: %w", *slotID, err)
		}
		return err
	}
	if err := workflow.SetNotes(*notes); err != nil {
		return err
	}

	state := workflow.State()
	fmt.Fprintf(a.stdout, "Booking %s at %s\n", resource.Name, state.Draft.Slot.Start.UTC().Format(displayTime))

	reservation, err := workflow.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Reservation %d confirmed\n", reservation.ID)
	return nil
}

func runCancel(ctx context.Context, a *app, args []string) error {
	fs := a.flagSet("cancel")
	id := fs.Int64("id", 0, "reservation to cancel")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("%w: --id is required", errUsage)
	}

	reservation, err := a.catalog.CancelReservation(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Reservation %d is now %s\n", reservation.ID, reservation.Status)
	return nil
}

func runExport(ctx context.Context, a *app, args []string) (err error) {
	fs := a.flagSet("export")
	fromFlag := fs.String("from", "", "first day to include (YYYY-MM-DD)")
	toFlag := fs.String("to", "", "last day to include (YYYY-MM-DD)")
	output := fs.String("output", "-", "file to write, - for stdout")
	name := fs.String("name", "GymDesk reservations", "calendar name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	from, err := parseDate("from", *fromFlag)
	if err != nil {
		return err
	}
	to, err := parseDate("to", *toFlag)
	if err != nil {
		return err
	}
	if !to.IsZero() {
		// The last day is inclusive.
		to = to.AddDate(0, 0, 1)
	}

	w := a.stdout
	if *output != "-" {
		file, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", *output, err)
		}
		defer func() {
			if cerr := file.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		w = file
	}

	count, err := export.ICS(ctx, w, a.catalog, export.Options{
		Range:        export.Range{From: from, To: to},
		CalendarName: *name,
		Now:          a.now,
	})
	if err != nil {
		return err
	}
	if *output != "-" {
		fmt.Fprintf(a.stdout, "Exported %d reservations to %s\n", count, *output)
	}
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}
