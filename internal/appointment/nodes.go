package appointment

import (
	"fmt"
	"strings"

	"github.com/worldofdoors/doorbot/internal/flow"
)

// InitialNode is the greeting and intent-detection state. With
// waitForUser set the bot stays quiet until the caller speaks first.
func (f *Flow) InitialNode(waitForUser bool) *flow.Node {
	now := f.clock()
	persona := fmt.Sprintf(`You are Jordan, an inbound customer service representative for World of Doors, a garage door service company.

IMPORTANT CONTEXT:
- Today's date is: %s
- Current time is: %s
- Use this information when discussing appointment dates and times
- When customer says "tomorrow", you know what date that is
- When customer says "next week", you can calculate the dates

Speak clearly, professionally, and naturally. Use contractions and be conversational, but avoid excessive filler words like "um", "uh", "oh", "like", "awesome". Stay friendly but efficient.

This is a voice conversation, so avoid special characters, emojis, and overly formal language.`,
		now.Format("Monday, January 2, 2006"), now.Format("03:04 PM"))

	return &flow.Node{
		Name:         "start",
		RoleMessages: []flow.Message{{Role: "system", Content: persona}},
		TaskMessages: []flow.Message{{Role: "system", Content: `Warmly greet the customer and ask how you can help them today.

Listen for:
- New appointment scheduling
- Rescheduling an existing appointment
- Cancelling an appointment
- Questions about products/services

Example greeting: "Hey! Thanks for calling World of Doors, this is Jordan. How can I help you today?"

Keep it brief and natural.`}},
		Functions: []flow.FunctionSchema{
			f.newAppointmentSchema(),
			f.rescheduleRequestSchema(),
			f.cancelRequestSchema(),
			f.productInfoRequestSchema(),
		},
		RespondImmediately: !waitForUser,
	}
}

func (f *Flow) serviceTypeNode() *flow.Node {
	return &flow.Node{
		Name: "service_type",
		TaskMessages: []flow.Message{{Role: "system", Content: `Ask briefly what's going on with their garage door.

Example: "Okay, what's going on with the door?"

Once they describe the issue, call collect_service_type with the details.`}},
		Functions: []flow.FunctionSchema{{
			Name:        "collect_service_type",
			Description: "Call this IMMEDIATELY after customer tells you what service they need. This saves their service type and moves to the next step.",
			Properties: map[string]flow.Property{
				"service_type": {
					Type:        "string",
					Enum:        []string{"repair", "installation", "maintenance", "inspection"},
					Description: "Type of garage door service needed",
				},
				"issue_description": {
					Type:        "string",
					Description: "Brief description of the garage door issue",
				},
			},
			Required: []string{"service_type"},
			Handler:  f.collectServiceType,
		}},
	}
}

func (f *Flow) customerInfoNode() *flow.Node {
	return &flow.Node{
		Name: "customer_info",
		TaskMessages: []flow.Message{{Role: "system", Content: `Get name, phone, email (optional), and service address efficiently.

Example: "Great. Can I get your name, phone number, and the service address?"

Call collect_customer_info once you have the details.`}},
		Functions: []flow.FunctionSchema{{
			Name:        "collect_customer_info",
			Description: "Call this IMMEDIATELY after collecting customer's name, phone, and address. This saves their information and moves to scheduling.",
			Properties: map[string]flow.Property{
				"customer_name":   {Type: "string", Description: "Customer's full name"},
				"phone_number":    {Type: "string", Description: "Customer's contact phone number"},
				"email":           {Type: "string", Description: "Customer's email address (optional)"},
				"service_address": {Type: "string", Description: "Address where service is needed"},
			},
			Required: []string{"customer_name", "phone_number", "service_address"},
			Handler:  f.collectCustomerInfo,
		}},
	}
}

func (f *Flow) scheduleAppointmentNode() *flow.Node {
	now := f.clock()
	task := fmt.Sprintf(`Ask when they'd like to schedule.

Today is: %s
Tomorrow is: %s
Hours: %d AM - %d PM, Mon-Sat

Example: "When works best for you?"

Call check_availability with their preferred date/time (format: YYYY-MM-DD, HH:MM).`,
		now.Format("Monday, January 2, 2006"),
		now.AddDate(0, 0, 1).Format("Monday, January 2, 2006"),
		f.cfg.OpenHour, f.cfg.CloseHour-12)

	return &flow.Node{
		Name:         "schedule_appointment",
		TaskMessages: []flow.Message{{Role: "system", Content: task}},
		Functions:    []flow.FunctionSchema{f.availabilitySchema()},
	}
}

func (f *Flow) confirmAppointmentNode() *flow.Node {
	return &flow.Node{
		Name: "confirm_appointment",
		TaskMessages: []flow.Message{{Role: "system", Content: `Quickly confirm the key details:

Example: "Okay, so {{service_type}} on {{date}} at {{time}}. Sound good?"

When they confirm, call confirm_booking.`}},
		Functions: []flow.FunctionSchema{{
			Name:        "confirm_booking",
			Description: "Call this IMMEDIATELY when customer confirms appointment is correct (says yes, looks good, that's right, etc). This creates the appointment in the system.",
			Properties: map[string]flow.Property{
				"appointment_time": {Type: "string", Description: "The confirmed appointment date and time"},
			},
			Required: []string{"appointment_time"},
			Handler:  f.confirmBooking,
		}},
	}
}

func (f *Flow) appointmentConfirmedNode() *flow.Node {
	return &flow.Node{
		Name: "appointment_confirmed",
		TaskMessages: []flow.Message{{Role: "system", Content: `Briefly confirm and wrap up.

Example: "Perfect! Your confirmation number is {{confirmation_number}}. You'll get an email, and we'll call 30 minutes before. Anything else?"

Keep it short and friendly.`}},
		Functions: []flow.FunctionSchema{f.endConversationSchema()},
	}
}

func (f *Flow) noAvailabilityNode(alternatives []string) *flow.Node {
	task := fmt.Sprintf(`Apologize that the requested time isn't available and suggest alternatives.

Say something like: "That time's booked, but I have these slots open: %s. Would any of those work?"

Be positive and helpful. Once they choose an alternative, use check_availability again.`, strings.Join(alternatives, ", "))

	return &flow.Node{
		Name:         "no_availability",
		TaskMessages: []flow.Message{{Role: "system", Content: task}},
		Functions:    []flow.FunctionSchema{f.availabilitySchema(), f.endConversationSchema()},
	}
}

func (f *Flow) rescheduleLookupNode() *flow.Node {
	return &flow.Node{
		Name: "reschedule_lookup",
		TaskMessages: []flow.Message{{Role: "system", Content: `Look up the customer's existing appointment using the information they provided.

Say something like: "No problem. Let me pull up your appointment..."

Use the lookup_reschedule function to find their appointment and check the 24-hour policy.`}},
		Functions: []flow.FunctionSchema{{
			Name:        "lookup_reschedule",
			Description: "Look up appointment and check if rescheduling is allowed",
			Properties: map[string]flow.Property{
				"customer_name": {Type: "string", Description: "Customer's name"},
				"phone_number":  {Type: "string", Description: "Customer's phone number"},
			},
			Required: []string{"customer_name", "phone_number"},
			Handler:  f.lookupReschedule,
		}},
	}
}

func (f *Flow) rescheduleNewTimeNode(lateNotice bool) *flow.Node {
	now := f.clock()
	task := fmt.Sprintf(`Help the customer choose a new date and time.

IMPORTANT DATE CONTEXT:
- Today is: %s
- Tomorrow is: %s
- Business hours: %d AM to %d PM, Monday through Saturday
`,
		now.Format("Monday, January 2, 2006"),
		now.AddDate(0, 0, 1).Format("Monday, January 2, 2006"),
		f.cfg.OpenHour, f.cfg.CloseHour-12)

	if lateNotice {
		task += fmt.Sprintf(`
The appointment is within 24 hours. Mention: "Just so you know, since it's within 24 hours, there might be a $%.0f rescheduling fee. Still want to reschedule?"
`, f.cfg.CancellationFee)
	}

	task += `
Then ask: "Okay, when works better for you?"

Once they provide it, use reschedule_to_new_time to update the appointment.`

	return &flow.Node{
		Name:         "reschedule_new_time",
		TaskMessages: []flow.Message{{Role: "system", Content: task}},
		Functions: []flow.FunctionSchema{{
			Name:        "reschedule_to_new_time",
			Description: "Reschedule appointment to new date/time",
			Properties: map[string]flow.Property{
				"new_datetime": {Type: "string", Description: "New appointment date and time"},
			},
			Required: []string{"new_datetime"},
			Handler:  f.rescheduleToNewTime,
		}},
	}
}

func (f *Flow) cancelLookupNode() *flow.Node {
	return &flow.Node{
		Name: "cancel_lookup",
		TaskMessages: []flow.Message{{Role: "system", Content: `Look up the customer's appointment for cancellation.

Be understanding: "I understand. Let me look that up for you..."

Use the lookup_cancel function to find their appointment.`}},
		Functions: []flow.FunctionSchema{{
			Name:        "lookup_cancel",
			Description: "Look up appointment for cancellation",
			Properties: map[string]flow.Property{
				"customer_name": {Type: "string", Description: "Customer's name"},
				"phone_number":  {Type: "string", Description: "Customer's phone number"},
			},
			Required: []string{"customer_name", "phone_number"},
			Handler:  f.lookupCancel,
		}},
	}
}

func (f *Flow) cancelDecisionNode(lateNotice bool, appointmentTime string) *flow.Node {
	var task string
	if lateNotice {
		task = fmt.Sprintf(`The appointment is within 24 hours. Explain the cancellation fee.

Say: "Your appointment's coming up soon at %s, so there's a $%.0f cancellation fee. Do you still want to cancel, or would you prefer to reschedule?"

Listen for their decision.`, appointmentTime, f.cfg.CancellationFee)
	} else {
		task = fmt.Sprintf(`The appointment is not within 24 hours.

Say: "I found your appointment for %s. I can cancel that for you. Should I go ahead, or would you rather reschedule?"

Listen for their decision.`, appointmentTime)
	}

	return &flow.Node{
		Name:         "cancel_decision",
		TaskMessages: []flow.Message{{Role: "system", Content: task}},
		Functions: []flow.FunctionSchema{
			{
				Name:        "proceed_with_cancel",
				Description: "Customer confirms they want to cancel",
				Handler:     f.proceedWithCancellation,
			},
			f.rescheduleRequestSchema(),
			{
				Name:        "keep_appointment",
				Description: "Customer decides to keep their appointment",
				Handler:     f.keepAppointment,
			},
		},
	}
}

func (f *Flow) cancellationConfirmedNode() *flow.Node {
	return &flow.Node{
		Name: "cancellation_confirmed",
		TaskMessages: []flow.Message{{Role: "system", Content: `Confirm the cancellation warmly.

Say: "Done. Your appointment is cancelled. If you need anything in the future, just give us a call. Anything else I can help with?"

Be understanding and positive.`}},
		Functions: []flow.FunctionSchema{f.endConversationSchema()},
	}
}

func (f *Flow) productInfoNode() *flow.Node {
	return &flow.Node{
		Name: "product_info",
		TaskMessages: []flow.Message{{Role: "system", Content: `Provide information about World of Doors services confidently and naturally.

Say something like: "Sure! We handle garage door repair, installation, maintenance, and inspections. We're known for quality work and reliable service with competitive pricing. We usually have same-day or next-day appointments available. Would you like to schedule a service?"

Be helpful and conversational.`}},
		Functions: []flow.FunctionSchema{{
			Name:        "product_inquiry_action",
			Description: "What customer wants to do after getting product info",
			Properties: map[string]flow.Property{
				"next_action": {
					Type:        "string",
					Enum:        []string{"schedule", "more_questions", "done"},
					Description: "Customer's next desired action",
				},
			},
			Required: []string{"next_action"},
			Handler:  f.handleProductInquiry,
		}},
	}
}

func (f *Flow) endNode() *flow.Node {
	return &flow.Node{
		Name: "end",
		TaskMessages: []flow.Message{{Role: "system", Content: `Thank them warmly and end the conversation.

Say something like: "Perfect! Alright, we'll see you then... have a great day!"

Be warm and genuine.`}},
		PostActions: []flow.Action{{Type: flow.ActionEndConversation}},
	}
}

// Shared schemas used by more than one node.

func (f *Flow) newAppointmentSchema() flow.FunctionSchema {
	return flow.FunctionSchema{
		Name:        "new_appointment",
		Description: "Customer wants to schedule a new appointment",
		Handler:     f.handleNewAppointment,
	}
}

func (f *Flow) rescheduleRequestSchema() flow.FunctionSchema {
	return flow.FunctionSchema{
		Name:        "reschedule_appointment",
		Description: "Customer wants to reschedule an existing appointment",
		Properties: map[string]flow.Property{
			"customer_name": {Type: "string", Description: "Customer's name for lookup"},
			"phone_number":  {Type: "string", Description: "Customer's phone number for lookup"},
		},
		Required: []string{"customer_name", "phone_number"},
		Handler:  f.handleRescheduleRequest,
	}
}

func (f *Flow) cancelRequestSchema() flow.FunctionSchema {
	return flow.FunctionSchema{
		Name:        "cancel_appointment",
		Description: "Customer wants to cancel an appointment",
		Properties: map[string]flow.Property{
			"customer_name": {Type: "string", Description: "Customer's name for lookup"},
			"phone_number":  {Type: "string", Description: "Customer's phone number for lookup"},
		},
		Required: []string{"customer_name", "phone_number"},
		Handler:  f.handleCancelRequest,
	}
}

func (f *Flow) productInfoRequestSchema() flow.FunctionSchema {
	return flow.FunctionSchema{
		Name:        "product_info",
		Description: "Customer has questions about products or services",
		Handler:     f.handleProductInfoRequest,
	}
}

func (f *Flow) availabilitySchema() flow.FunctionSchema {
	return flow.FunctionSchema{
		Name:        "check_availability",
		Description: "Call this IMMEDIATELY after customer tells you their preferred date and time. This checks calendar availability. Do not wait or say anything else - call this function right away.",
		Properties: map[string]flow.Property{
			"preferred_date": {
				Type:        "string",
				Description: "Preferred date in YYYY-MM-DD format (e.g., '2026-09-25'). Convert relative dates like 'tomorrow' or 'next Monday' to this format.",
			},
			"preferred_time": {
				Type:        "string",
				Description: "Preferred time (e.g., '2:00 PM', '14:00', '10 AM'). Must be within business hours.",
			},
		},
		Required: []string{"preferred_date", "preferred_time"},
		Handler:  f.checkAvailability,
	}
}

func (f *Flow) endConversationSchema() flow.FunctionSchema {
	return flow.FunctionSchema{
		Name:        "end_conversation",
		Description: "End the conversation",
		Handler:     f.endConversation,
	}
}
