// Package backend is the REST client for the scheduling backend that owns
// contacts, appointments, and the calendar.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/worldofdoors/doorbot/internal/ctxlog"
)

// ErrNotFound reports that the backend answered but had no matching record.
// Callers treat it as an expected outcome, not a failure.
var ErrNotFound = fmt.Errorf("backend: not found")

// Client talks to the scheduling backend. The zero value is not usable;
// use New.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a backend client with a pooled transport.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// LookupContact finds a contact by phone number. Returns ErrNotFound when
// the caller is unknown.
func (c *Client) LookupContact(ctx context.Context, phone string) (*Contact, error) {
	endpoint := "/contacts/lookup?phone=" + url.QueryEscape(phone)
	var contact Contact
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &contact); err != nil {
		return nil, err
	}
	if contact.ID == "" {
		// The lookup endpoint answers 200 with a null body for unknown numbers.
		return nil, ErrNotFound
	}
	return &contact, nil
}

// CreateContact registers a new customer.
func (c *Client) CreateContact(ctx context.Context, in NewContact) (*Contact, error) {
	var contact Contact
	if err := c.request(ctx, http.MethodPost, "/contacts", in, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// GetContact fetches a contact by ID.
func (c *Client) GetContact(ctx context.Context, id string) (*Contact, error) {
	var contact Contact
	if err := c.request(ctx, http.MethodGet, "/contacts/"+url.PathEscape(id), nil, &contact); err != nil {
		return nil, err
	}
	return &contact, nil
}

// CreateAppointment books a visit and returns it with its confirmation number.
func (c *Client) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	var appt Appointment
	if err := c.request(ctx, http.MethodPost, "/appointments", in, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// GetAppointment fetches an appointment by ID.
func (c *Client) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	var appt Appointment
	if err := c.request(ctx, http.MethodGet, "/appointments/"+url.PathEscape(id), nil, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// GetAppointmentByConfirmation fetches an appointment by its confirmation
// number (e.g. WOD123456).
func (c *Client) GetAppointmentByConfirmation(ctx context.Context, number string) (*Appointment, error) {
	endpoint := "/appointments/by-confirmation/" + url.PathEscape(number)
	var appt Appointment
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &appt); err != nil {
		return nil, err
	}
	if appt.ID == "" {
		return nil, ErrNotFound
	}
	return &appt, nil
}

// UpdateAppointment reschedules or otherwise patches an appointment.
func (c *Client) UpdateAppointment(ctx context.Context, id string, update AppointmentUpdate) (*Appointment, error) {
	var appt Appointment
	if err := c.request(ctx, http.MethodPatch, "/appointments/"+url.PathEscape(id), update, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// CancelAppointment cancels an appointment and returns its final state.
func (c *Client) CancelAppointment(ctx context.Context, id string) (*Appointment, error) {
	var appt Appointment
	if err := c.request(ctx, http.MethodDelete, "/appointments/"+url.PathEscape(id), nil, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

// CheckAvailability asks the calendar for open slots on a date
// (YYYY-MM-DD).
func (c *Client) CheckAvailability(ctx context.Context, req AvailabilityRequest) (*Availability, error) {
	var avail Availability
	if err := c.request(ctx, http.MethodPost, "/calendar/check-availability", req, &avail); err != nil {
		return nil, err
	}
	return &avail, nil
}

// UpcomingAppointments lists all future appointments.
func (c *Client) UpcomingAppointments(ctx context.Context) ([]Appointment, error) {
	var appts []Appointment
	if err := c.request(ctx, http.MethodGet, "/appointments/upcoming", nil, &appts); err != nil {
		return nil, err
	}
	return appts, nil
}

// request performs one API call and decodes the JSON response into out.
// A nil out discards the body. 404 maps to ErrNotFound.
func (c *Client) request(ctx context.Context, method, endpoint string, body, out any) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("📡 API call", "method", method, "endpoint", endpoint)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		logger.Debug("Request payload prepared.", "bytes", len(payload))
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.Error("❌ API request failed", "method", method, "endpoint", endpoint, "error", err)
		return fmt.Errorf("backend request %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		errText, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		logger.Error("❌ API error response", "method", method, "endpoint", endpoint, "status", resp.StatusCode, "body", string(errText))
		return fmt.Errorf("backend request %s %s: status %d", method, endpoint, resp.StatusCode)
	}

	logger.Info("✅ API success", "method", method, "endpoint", endpoint, "status", resp.StatusCode)

	if out == nil {
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Some endpoints answer 200 with a literal null when nothing matched.
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
