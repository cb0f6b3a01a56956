package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelaySequence(t *testing.T) {
	b := DefaultBackoff()

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second, // capped, not 32
		30 * time.Second,
	}
	for attempt, expected := range want {
		assert.Equal(t, expected, b.Delay(attempt), "attempt %d", attempt)
	}
}

func TestBackoffStaysAtCapForever(t *testing.T) {
	b := Backoff{Base: 1 * time.Second, Max: 30 * time.Second}
	// There is no retry count limit, so the delay must remain capped for
	// arbitrarily high attempt numbers without overflowing.
	assert.Equal(t, 30*time.Second, b.Delay(100))
	assert.Equal(t, 30*time.Second, b.Delay(1000))
}

func TestBackoffBaseAboveCap(t *testing.T) {
	b := Backoff{Base: 45 * time.Second, Max: 30 * time.Second}
	assert.Equal(t, 30*time.Second, b.Delay(0))
}
