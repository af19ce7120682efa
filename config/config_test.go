package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	e, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1, e.ThreadCount)
	assert.Equal(t, 15, e.QueuePollWaitSeconds)
	assert.Equal(t, 10000, e.NonceCapacity)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	t.Setenv("EVENTQ_THREAD_COUNT", "8")
	t.Setenv("EVENTQ_QUEUE_NAME", "orders")
	t.Setenv("EVENTQ_ALLOW_RETRY", "false")

	e, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, e.ThreadCount)
	assert.Equal(t, "orders", e.QueueName)
	assert.False(t, e.AllowRetry)

	opts := e.WorkerOptions()
	assert.Equal(t, 8, opts.ThreadCount)

	spec := e.QueueSpec()
	assert.Equal(t, "orders", spec.Name)
	assert.False(t, spec.AllowRetry)
}
