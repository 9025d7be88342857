// Package appointment is the World of Doors scheduling conversation: the
// nodes the caller moves through, the handlers behind the model's tool
// calls, and the booking policies (business hours, the 24-hour
// late-notice rule, slot length).
package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/worldofdoors/doorbot/internal/backend"
	"github.com/worldofdoors/doorbot/internal/config"
	"github.com/worldofdoors/doorbot/internal/ctxlog"
	"github.com/worldofdoors/doorbot/internal/flow"
)

// Store keys shared between handlers. One call, one store.
const (
	keyCallerPhone    = "caller_phone"
	keyContactID      = "contact_id"
	keyServiceType    = "service_type"
	keyIssue          = "issue_description"
	keyCustomerName   = "customer_name"
	keyPhoneNumber    = "phone_number"
	keyEmail          = "email"
	keyServiceAddress = "service_address"
	keySelectedTime   = "selected_datetime"
	keyAppointmentID  = "appointment_id"
	keyConfirmation   = "confirmation_number"
	keyLookupName     = "lookup_name"
	keyLookupPhone    = "lookup_phone"
	keyOutcome        = "outcome"
)

// Outcomes a call can end with.
const (
	OutcomeBooked        = "BOOKED"
	OutcomeRescheduled   = "RESCHEDULED"
	OutcomeCancelled     = "CANCELLED"
	OutcomeNoResponse    = "NO_RESPONSE"
	OutcomeNotInterested = "NOT_INTERESTED"
)

// Flow builds the conversation for one call. Handlers read and write the
// session store, talk to the scheduling backend, and decide the next node.
type Flow struct {
	api   *backend.Client
	store *flow.Store
	cache *AvailabilityCache
	cfg   config.Bot
	clock func() time.Time

	slotDuration time.Duration
}

// New wires a flow to its dependencies. The store belongs to the flow
// manager driving this call; the cache is shared across calls so backend
// events can invalidate everyone's quoted availability at once.
func New(api *backend.Client, store *flow.Store, cache *AvailabilityCache, cfg config.Bot, clock func() time.Time) *Flow {
	if clock == nil {
		clock = time.Now
	}
	slotHours := cfg.SlotHours
	if slotHours <= 0 {
		slotHours = 2
	}
	return &Flow{
		api:          api,
		store:        store,
		cache:        cache,
		cfg:          cfg,
		clock:        clock,
		slotDuration: time.Duration(slotHours) * time.Hour,
	}
}

// InitializeCaller seeds the store with the caller's phone number and
// looks up their existing contact record. A lookup failure is not fatal;
// the contact gets created later when details are collected.
func (f *Flow) InitializeCaller(ctx context.Context, callerPhone string) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("📞 Initializing caller context", "phone", callerPhone)

	f.store.Set(keyCallerPhone, callerPhone)
	if callerPhone == "" {
		return
	}

	contact, err := f.api.LookupContact(ctx, callerPhone)
	switch {
	case errors.Is(err, backend.ErrNotFound):
		logger.Info("📝 New caller, contact will be created during the call")
	case err != nil:
		logger.Error("Contact lookup failed", "error", err)
	default:
		logger.Info("✅ Found existing contact", "contact_id", contact.ID, "name", contact.FirstName+" "+contact.LastName)
		f.store.Set(keyContactID, contact.ID)
		f.store.Set(keyCustomerName, contact.FirstName+" "+contact.LastName)
	}
}

// Outcome reports how the call ended, defaulting to NO_RESPONSE when the
// conversation never reached a terminal handler.
func (f *Flow) Outcome() string {
	if outcome := f.store.GetString(keyOutcome); outcome != "" {
		return outcome
	}
	return OutcomeNoResponse
}

// ConfirmationNumber returns the booked confirmation number, if any.
func (f *Flow) ConfirmationNumber() string {
	return f.store.GetString(keyConfirmation)
}
