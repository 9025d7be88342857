package twiml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_Empty(t *testing.T) {
	out, err := New().Render()
	require.NoError(t, err)

	assert.Contains(t, out, "<?xml")
	assert.Contains(t, out, "<Response></Response>")
}

func TestRender_SayAndDialSip(t *testing.T) {
	out, err := New().
		WithSay("Please hold...").
		WithDialSip("sip:room-abc@sip.daily.co").
		Render()
	require.NoError(t, err)

	assert.Contains(t, out, `<Say voice="alice">Please hold...</Say>`)
	assert.Contains(t, out, "<Dial><Sip>sip:room-abc@sip.daily.co</Sip></Dial>")
}

func TestRender_SayOnly(t *testing.T) {
	out, err := New().
		WithSay("We're sorry, but we're experiencing technical difficulties. Please try again later.").
		Render()
	require.NoError(t, err)

	assert.Contains(t, out, "<Say")
	assert.NotContains(t, out, "<Dial>")
}
