package appointment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/worldofdoors/doorbot/internal/backend"
	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/flow"
)

// mockAlternatives are offered when the calendar has nothing open or
// cannot be reached.
var mockAlternatives = []string{"9:00 AM", "10:00 AM", "2:00 PM", "3:00 PM"}

// mockBookedTimes are the slots the offline fallback pretends are taken.
var mockBookedTimes = map[string]bool{
	"7:00 PM": true,
	"8:00 PM": true,
	"19:00":   true,
	"20:00":   true,
}

// handleNewAppointment routes a caller who wants to book.
func (f *Flow) handleNewAppointment(ctx context.Context, _ flow.Args) (flow.Result, *flow.Node, error) {
	ctxlog.FromContext(ctx).Info("Caller wants a new appointment")
	return flow.Result{"intent": "new_appointment"}, f.serviceTypeNode(), nil
}

// handleRescheduleRequest routes a caller who wants to move an existing
// appointment.
func (f *Flow) handleRescheduleRequest(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	name := args.String("customer_name")
	phone := args.String("phone_number")
	ctxlog.FromContext(ctx).Info("Caller wants to reschedule", "name", name, "phone", phone)

	f.store.Set(keyLookupName, name)
	f.store.Set(keyLookupPhone, phone)

	return flow.Result{
		"intent":        "reschedule",
		"customer_name": name,
		"phone_number":  phone,
	}, f.rescheduleLookupNode(), nil
}

// handleCancelRequest routes a caller who wants to cancel.
func (f *Flow) handleCancelRequest(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	name := args.String("customer_name")
	phone := args.String("phone_number")
	ctxlog.FromContext(ctx).Info("Caller wants to cancel", "name", name, "phone", phone)

	f.store.Set(keyLookupName, name)
	f.store.Set(keyLookupPhone, phone)

	return flow.Result{
		"intent":        "cancel",
		"customer_name": name,
		"phone_number":  phone,
	}, f.cancelLookupNode(), nil
}

// handleProductInfoRequest routes a caller with product questions.
func (f *Flow) handleProductInfoRequest(ctx context.Context, _ flow.Args) (flow.Result, *flow.Node, error) {
	ctxlog.FromContext(ctx).Info("Caller has product questions")
	return flow.Result{"intent": "product_info"}, f.productInfoNode(), nil
}

// collectServiceType saves what the door needs and moves to customer
// details.
func (f *Flow) collectServiceType(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	serviceType := args.String("service_type")
	issue := args.String("issue_description")
	ctxlog.FromContext(ctx).Info("🔧 Service type collected", "service_type", serviceType, "issue", issue)

	f.store.Set(keyServiceType, serviceType)
	f.store.Set(keyIssue, issue)

	return flow.Result{
		"service_type":      serviceType,
		"issue_description": issue,
	}, f.customerInfoNode(), nil
}

// collectCustomerInfo saves the caller's details, makes sure a contact
// record exists, and moves to scheduling.
func (f *Flow) collectCustomerInfo(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	logger := ctxlog.FromContext(ctx)

	name := args.String("customer_name")
	phone := args.String("phone_number")
	email := args.String("email")
	address := args.String("service_address")
	logger.Info("📋 Customer info collected", "name", name, "phone", phone, "address", address)

	f.store.Set(keyCustomerName, name)
	f.store.Set(keyPhoneNumber, phone)
	f.store.Set(keyEmail, email)
	f.store.Set(keyServiceAddress, address)

	if contact := f.ensureContact(ctx, phone, name, email, address); contact != nil {
		f.store.Set(keyContactID, contact.ID)
		logger.Info("✅ Contact ready", "contact_id", contact.ID)
	} else {
		logger.Warn("Contact unavailable, will book with raw customer details")
	}

	return flow.Result{
		"customer_name":   name,
		"phone_number":    phone,
		"email":           email,
		"service_address": address,
	}, f.scheduleAppointmentNode(), nil
}

// ensureContact finds the existing contact for the phone number or
// creates one. Returns nil when the backend cannot help; booking still
// works with inline customer details.
func (f *Flow) ensureContact(ctx context.Context, phone, name, email, address string) *backend.Contact {
	logger := ctxlog.FromContext(ctx)

	if existing, err := f.api.LookupContact(ctx, phone); err == nil {
		logger.Info("♻️ Contact exists", "contact_id", existing.ID)
		return existing
	}

	firstName, lastName := splitName(name)
	contact, err := f.api.CreateContact(ctx, backend.NewContact{
		FirstName: firstName,
		LastName:  lastName,
		Phone:     phone,
		Email:     email,
		Address:   address,
	})
	if err != nil {
		logger.Error("Contact creation failed", "error", err)
		return nil
	}
	logger.Info("➕ Contact created", "contact_id", contact.ID)
	return contact
}

// checkAvailability asks the calendar about the caller's preferred slot
// and either moves to confirmation or offers alternatives. When the
// backend is unreachable it falls back to canned availability so the call
// can still finish.
func (f *Flow) checkAvailability(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	logger := ctxlog.FromContext(ctx)

	preferredDate := args.String("preferred_date")
	preferredTime := args.String("preferred_time")
	logger.Info("📅 Checking availability", "date", preferredDate, "time", preferredTime)

	availability, err := f.lookupAvailability(ctx, preferredDate)
	if err != nil {
		logger.Warn("Calendar unreachable, using offline availability", "error", err)
		return f.mockAvailability(preferredDate, preferredTime)
	}

	if !availability.Available || len(availability.Slots) == 0 {
		return availabilityResult(false, preferredDate, preferredTime, "", mockAlternatives),
			f.noAvailabilityNode(mockAlternatives), nil
	}

	slot := pickSlot(availability.Slots, preferredTime)
	selected := slot.Start.Format(time.RFC3339)
	f.store.Set(keySelectedTime, selected)

	return availabilityResult(true, preferredDate, preferredTime, selected, nil),
		f.confirmAppointmentNode(), nil
}

// lookupAvailability consults the cache before the backend.
func (f *Flow) lookupAvailability(ctx context.Context, date string) (*backend.Availability, error) {
	if cached, ok := f.cache.Get(date); ok {
		return cached, nil
	}
	availability, err := f.api.CheckAvailability(ctx, backend.AvailabilityRequest{
		Date:          date,
		DurationHours: int(f.slotDuration.Hours()),
	})
	if err != nil {
		return nil, err
	}
	f.cache.Put(date, *availability)
	return availability, nil
}

// mockAvailability is the offline path: everything is open except the
// evening slots, and requests outside business hours are turned down.
func (f *Flow) mockAvailability(preferredDate, preferredTime string) (flow.Result, *flow.Node, error) {
	if hour, minute, err := parseClock(preferredTime); err == nil {
		requested := time.Date(1, 1, 1, hour, minute, 0, 0, time.UTC)
		if parsedDate, dateErr := time.Parse("2006-01-02", preferredDate); dateErr == nil {
			requested = time.Date(parsedDate.Year(), parsedDate.Month(), parsedDate.Day(), hour, minute, 0, 0, time.UTC)
			if !f.withinBusinessHours(requested) {
				return availabilityResult(false, preferredDate, preferredTime, "", mockAlternatives),
					f.noAvailabilityNode(mockAlternatives), nil
			}
		}
	}

	if mockBookedTimes[strings.ToUpper(strings.TrimSpace(preferredTime))] {
		return availabilityResult(false, preferredDate, preferredTime, "", mockAlternatives),
			f.noAvailabilityNode(mockAlternatives), nil
	}

	selected := mockDateTime(preferredDate, preferredTime)
	f.store.Set(keySelectedTime, selected)
	return availabilityResult(true, preferredDate, preferredTime, selected, nil),
		f.confirmAppointmentNode(), nil
}

// confirmBooking creates the appointment from everything collected so
// far. Missing essentials send the caller back to scheduling; a backend
// failure falls back to a locally minted confirmation number so the call
// still ends cleanly.
func (f *Flow) confirmBooking(ctx context.Context, _ flow.Args) (flow.Result, *flow.Node, error) {
	logger := ctxlog.FromContext(ctx)

	name := f.store.GetString(keyCustomerName)
	phone := f.store.GetString(keyPhoneNumber)
	selected := f.store.GetString(keySelectedTime)
	if name == "" || phone == "" || selected == "" {
		logger.Error("❌ Booking data incomplete", "name", name, "phone", phone, "selected", selected)
		return flow.Result{"booked": false, "appointment_time": "TBD"}, f.scheduleAppointmentNode(), nil
	}

	start, err := parseISOTime(selected)
	if err != nil {
		logger.Error("Selected time unparseable", "selected", selected, "error", err)
		return flow.Result{"booked": false, "appointment_time": "TBD"}, f.scheduleAppointmentNode(), nil
	}

	serviceType := f.store.GetString(keyServiceType)
	if serviceType == "" {
		serviceType = "repair"
	}

	booking := backend.NewAppointment{
		ScheduledTime:    start,
		EndTime:          start.Add(f.slotDuration),
		ServiceType:      backend.ServiceType(strings.ToUpper(serviceType)),
		IssueDescription: f.store.GetString(keyIssue),
	}
	if contactID := f.store.GetString(keyContactID); contactID != "" {
		booking.ContactID = contactID
	} else {
		booking.CustomerPhone = phone
		booking.CustomerName = name
		booking.CustomerEmail = f.store.GetString(keyEmail)
	}

	logger.Info("Creating appointment", "name", name, "time", selected)
	appt, err := f.api.CreateAppointment(ctx, booking)
	if err != nil {
		logger.Warn("Booking via backend failed, minting offline confirmation", "error", err)
		confirmation := "WOD" + f.clock().Format("20060102150405")
		f.store.Set(keyConfirmation, confirmation)
		f.store.Set(keyOutcome, OutcomeBooked)
		return bookingResult(true, confirmation, selected), f.appointmentConfirmedNode(), nil
	}

	logger.Info("✓ Appointment created", "confirmation", appt.ConfirmationNumber)
	f.store.Set(keyAppointmentID, appt.ID)
	f.store.Set(keyConfirmation, appt.ConfirmationNumber)
	f.store.Set(keyOutcome, OutcomeBooked)
	f.cache.Invalidate()

	return bookingResult(true, appt.ConfirmationNumber, selected), f.appointmentConfirmedNode(), nil
}

// lookupReschedule finds the caller's upcoming appointment and checks the
// late-notice window before offering new times.
func (f *Flow) lookupReschedule(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	scheduled := f.findUpcomingAppointment(ctx, args)
	within := f.lateNoticeApplies(scheduled)

	return flow.Result{
		"within_24_hours":          within,
		"current_appointment_time": scheduled,
		"proceed":                  true,
	}, f.rescheduleNewTimeNode(within), nil
}

// rescheduleToNewTime moves the appointment. Without an appointment on
// file the change is acknowledged locally so the caller is not stuck.
func (f *Flow) rescheduleToNewTime(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	logger := ctxlog.FromContext(ctx)
	newTime := args.String("new_datetime")

	start, err := parseISOTime(newTime)
	if err != nil {
		logger.Error("New time unparseable", "value", newTime, "error", err)
		return availabilityResult(false, "", "", "", []string{"9:00 AM", "11:00 AM", "2:00 PM"}),
			f.rescheduleNewTimeNode(false), nil
	}

	if appointmentID := f.store.GetString(keyAppointmentID); appointmentID != "" {
		end := start.Add(f.slotDuration)
		if _, err := f.api.UpdateAppointment(ctx, appointmentID, backend.AppointmentUpdate{
			ScheduledTime: &start,
			EndTime:       &end,
		}); err != nil {
			logger.Warn("Reschedule via backend failed, acknowledging locally", "error", err)
		} else {
			logger.Info("✓ Appointment rescheduled", "time", newTime)
			f.cache.Invalidate()
		}
	} else {
		logger.Warn("No appointment on file, acknowledging reschedule locally")
	}

	f.store.Set(keySelectedTime, newTime)
	f.store.Set(keyOutcome, OutcomeRescheduled)

	return availabilityResult(true, start.Format("2006-01-02"), start.Format("3:04 PM"), newTime, nil),
		f.appointmentConfirmedNode(), nil
}

// lookupCancel finds the appointment and routes to the fee-aware
// cancellation decision.
func (f *Flow) lookupCancel(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	scheduled := f.findUpcomingAppointment(ctx, args)
	within := f.lateNoticeApplies(scheduled)

	return flow.Result{
		"within_24_hours":          within,
		"current_appointment_time": scheduled,
		"decision":                 "pending",
	}, f.cancelDecisionNode(within, scheduled), nil
}

// proceedWithCancellation cancels the appointment.
func (f *Flow) proceedWithCancellation(ctx context.Context, _ flow.Args) (flow.Result, *flow.Node, error) {
	logger := ctxlog.FromContext(ctx)

	if appointmentID := f.store.GetString(keyAppointmentID); appointmentID != "" {
		if _, err := f.api.CancelAppointment(ctx, appointmentID); err != nil {
			logger.Warn("Cancellation via backend failed, acknowledging locally", "error", err)
		} else {
			logger.Info("✓ Appointment cancelled", "appointment_id", appointmentID)
			f.cache.Invalidate()
		}
	} else {
		logger.Warn("No appointment on file, acknowledging cancellation locally")
	}

	f.store.Set(keyOutcome, OutcomeCancelled)
	return nil, f.cancellationConfirmedNode(), nil
}

// keepAppointment records that the caller changed their mind.
func (f *Flow) keepAppointment(ctx context.Context, _ flow.Args) (flow.Result, *flow.Node, error) {
	ctxlog.FromContext(ctx).Info("Caller decided to keep the appointment")
	return nil, f.appointmentConfirmedNode(), nil
}

// handleProductInquiry routes the caller after product questions.
func (f *Flow) handleProductInquiry(ctx context.Context, args flow.Args) (flow.Result, *flow.Node, error) {
	action := args.String("next_action")
	ctxlog.FromContext(ctx).Info("After product info", "next_action", action)

	var next *flow.Node
	switch action {
	case "schedule":
		next = f.serviceTypeNode()
	case "more_questions":
		next = f.productInfoNode()
	default:
		f.store.Set(keyOutcome, OutcomeNotInterested)
		next = f.endNode()
	}
	return flow.Result{"intent": action}, next, nil
}

// endConversation moves to the farewell node, whose post-action hangs up
// after the goodbye is spoken.
func (f *Flow) endConversation(ctx context.Context, _ flow.Args) (flow.Result, *flow.Node, error) {
	ctxlog.FromContext(ctx).Info("Caller is done, wrapping up")
	return nil, f.endNode(), nil
}

// findUpcomingAppointment locates the caller's next appointment by
// contact and stores its ID. Falls back to a placeholder two days out
// when the backend has nothing, matching the offline behavior elsewhere.
func (f *Flow) findUpcomingAppointment(ctx context.Context, args flow.Args) string {
	logger := ctxlog.FromContext(ctx)

	f.store.Set(keyLookupName, args.String("customer_name"))
	f.store.Set(keyLookupPhone, args.String("phone_number"))

	phone := args.String("phone_number")
	if phone == "" {
		phone = f.store.GetString(keyCallerPhone)
	}

	contactID := f.store.GetString(keyContactID)
	if contactID == "" && phone != "" {
		if contact, err := f.api.LookupContact(ctx, phone); err == nil {
			contactID = contact.ID
			f.store.Set(keyContactID, contactID)
		}
	}

	if contactID != "" {
		if appts, err := f.api.UpcomingAppointments(ctx); err == nil {
			for _, appt := range appts {
				if appt.ContactID == contactID {
					logger.Info("✅ Found upcoming appointment", "appointment_id", appt.ID, "time", appt.ScheduledTime)
					f.store.Set(keyAppointmentID, appt.ID)
					f.store.Set(keyConfirmation, appt.ConfirmationNumber)
					return appt.ScheduledTime.Format(time.RFC3339)
				}
			}
		} else {
			logger.Warn("Upcoming appointment lookup failed", "error", err)
		}
	}

	logger.Warn("No appointment found, using placeholder time")
	return f.clock().Add(48 * time.Hour).Format(time.RFC3339)
}

// pickSlot matches the caller's preferred time against the open slots,
// defaulting to the first one.
func pickSlot(slots []backend.TimeSlot, preferredTime string) backend.TimeSlot {
	if hour, minute, err := parseClock(preferredTime); err == nil {
		for _, slot := range slots {
			if slot.Start.Hour() == hour && slot.Start.Minute() == minute {
				return slot
			}
		}
	}
	return slots[0]
}

// mockDateTime composes an ISO-ish timestamp from the model's date and
// time strings for the offline path.
func mockDateTime(date, clock string) string {
	if hour, minute, err := parseClock(clock); err == nil {
		return fmt.Sprintf("%sT%02d:%02d:00", date, hour, minute)
	}
	return fmt.Sprintf("%sT%s:00", date, strings.ReplaceAll(clock, " ", ""))
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(strings.TrimSpace(full))
	if len(parts) == 0 {
		return full, ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func availabilityResult(available bool, date, clock, selected string, alternatives []string) flow.Result {
	result := flow.Result{
		"available":      available,
		"preferred_date": date,
		"preferred_time": clock,
	}
	if selected != "" {
		result["selected_datetime"] = selected
	}
	if len(alternatives) > 0 {
		result["alternative_times"] = alternatives
	}
	return result
}

func bookingResult(booked bool, confirmation, appointmentTime string) flow.Result {
	return flow.Result{
		"booked":              booked,
		"confirmation_number": confirmation,
		"appointment_time":    appointmentTime,
	}
}
