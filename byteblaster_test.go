package byteblaster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsEmptyEmail(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, ErrEmailRequired)

	_, err = New(Options{Email: "   "})
	assert.ErrorIs(t, err, ErrEmailRequired)
}

func TestNewAppliesDefaults(t *testing.T) {
	disable := false
	c, err := New(Options{Email: "user@example.com", EnablePersistence: &disable})
	require.NoError(t, err)

	assert.False(t, c.IsRunning())
	assert.False(t, c.IsConnected())
	assert.Equal(t, 4, c.ServerCount())

	servers, sat := c.CurrentServerList()
	assert.Len(t, servers, 4)
	assert.Empty(t, sat)
}

func TestMetricsHandlerIsWired(t *testing.T) {
	disable := false
	c, err := New(Options{Email: "user@example.com", EnablePersistence: &disable})
	require.NoError(t, err)
	assert.NotNil(t, c.MetricsHandler())
}
