package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_NoGatewayURLDisablesListener(t *testing.T) {
	listener := NewListener("", nil)

	err := listener.Start(context.Background())

	require.NoError(t, err)
	assert.False(t, listener.Connected())

	// Stop on a never-started listener must be a no-op.
	listener.Stop(context.Background())
}

func TestStart_RejectsMalformedGatewayURL(t *testing.T) {
	listener := NewListener("http://bad url:3001", nil)

	err := listener.Start(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse")
}
