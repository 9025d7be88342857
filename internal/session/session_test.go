package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/worldofdoors/doorbot/internal/appointment"
	"github.com/worldofdoors/doorbot/internal/backend"
	"github.com/worldofdoors/doorbot/internal/config"
)

func newTestSession(callSid string) *Session {
	cfg := &config.Config{Bot: config.Bot{OpenHour: 9, CloseHour: 18, SlotHours: 2}}
	return New(cfg, backend.New("http://127.0.0.1:1"), nil, appointment.NewAvailabilityCache(time.Minute), Params{
		CallSid:     callSid,
		CallerPhone: "+15551234567",
		RoomName:    "wod-room",
	})
}

func TestRun_WithoutMediaGatewayIdlesUntilEnded(t *testing.T) {
	s := newTestSession("CA100")

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	s.End(context.Background())
	// Ending twice must be safe.
	s.End(context.Background())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after End")
	}
}

func TestOutcome_DefaultsToNoResponse(t *testing.T) {
	s := newTestSession("CA101")
	assert.Equal(t, appointment.OutcomeNoResponse, s.Outcome())
}

func TestRegistry_RejectsDuplicateCallSids(t *testing.T) {
	registry := NewRegistry()
	first := newTestSession("CA200")

	require.True(t, registry.Add(first))
	assert.False(t, registry.Add(newTestSession("CA200")), "duplicate webhook delivery must not spawn a second session")

	got, ok := registry.Get("CA200")
	require.True(t, ok)
	assert.Same(t, first, got)
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, []string{"CA200"}, registry.CallSids())

	registry.Remove("CA200")
	assert.Equal(t, 0, registry.Len())
	_, ok = registry.Get("CA200")
	assert.False(t, ok)
}
