package backend

import "time"

// ServiceType enumerates the job categories the scheduling backend accepts.
type ServiceType string

const (
	ServiceRepair       ServiceType = "REPAIR"
	ServiceInstallation ServiceType = "INSTALLATION"
	ServiceMaintenance  ServiceType = "MAINTENANCE"
	ServiceInspection   ServiceType = "INSPECTION"
	ServiceEmergency    ServiceType = "EMERGENCY"
)

// Contact is a customer record. Field names follow the backend's JSON.
type Contact struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// NewContact is the payload for creating a contact.
type NewContact struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Address   string `json:"address,omitempty"`
}

// Appointment is a scheduled service visit.
type Appointment struct {
	ID                 string      `json:"id"`
	ConfirmationNumber string      `json:"confirmationNumber"`
	ContactID          string      `json:"contactId,omitempty"`
	ScheduledTime      time.Time   `json:"scheduledTime"`
	EndTime            time.Time   `json:"endTime"`
	ServiceType        ServiceType `json:"serviceType"`
	Status             string      `json:"status,omitempty"`
	IssueDescription   string      `json:"issueDescription,omitempty"`
}

// NewAppointment is the payload for booking. Either ContactID or the
// customer fields must be set; the backend creates the contact otherwise.
type NewAppointment struct {
	ContactID        string      `json:"contactId,omitempty"`
	CustomerPhone    string      `json:"customerPhone,omitempty"`
	CustomerName     string      `json:"customerName,omitempty"`
	CustomerEmail    string      `json:"customerEmail,omitempty"`
	ScheduledTime    time.Time   `json:"scheduledTime"`
	EndTime          time.Time   `json:"endTime"`
	ServiceType      ServiceType `json:"serviceType"`
	IssueDescription string      `json:"issueDescription,omitempty"`
	CallID           string      `json:"callId,omitempty"`
}

// AppointmentUpdate is the payload for rescheduling or status changes.
// Zero time values are omitted so partial updates stay partial.
type AppointmentUpdate struct {
	ScheduledTime *time.Time `json:"scheduledTime,omitempty"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	Status        string     `json:"status,omitempty"`
}

// TimeSlot is one bookable window returned by the calendar.
type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// AvailabilityRequest asks the calendar for open slots on a date.
type AvailabilityRequest struct {
	Date          string      `json:"date"`
	DurationHours int         `json:"durationHours"`
	ServiceType   ServiceType `json:"serviceType,omitempty"`
}

// Availability is the calendar's answer.
type Availability struct {
	Available bool       `json:"available"`
	Slots     []TimeSlot `json:"slots"`
}
