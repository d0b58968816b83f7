package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	base := 2 * time.Second

	assert.Equal(t, 2*time.Second, backoffDelay(base, 1))
	assert.Equal(t, 4*time.Second, backoffDelay(base, 2))
	assert.Equal(t, 8*time.Second, backoffDelay(base, 3))
	assert.Equal(t, 32*time.Second, backoffDelay(base, 5))
	// Capped once the doubled delay reaches a minute.
	assert.Equal(t, time.Minute, backoffDelay(base, 6))
	assert.Equal(t, time.Minute, backoffDelay(base, 20))
}
