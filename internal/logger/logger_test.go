package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	l, err := New("debug", "console")
	require.NoError(t, err)
	assert.NotNil(t, l.WithComponent("test"))

	_, err = New("", "json")
	require.NoError(t, err)

	_, err = New("loud", "json")
	assert.Error(t, err)
}

func TestNop(t *testing.T) {
	l := Nop().WithComponent("api")
	assert.NotPanics(t, func() {
		l.LogHTTPRequest("GET", "/health", "127.0.0.1", 200, 1.5)
		l.Infow("message", "key", "value")
	})
}
