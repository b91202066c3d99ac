package mathx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-6.0, 0, 100))
	assert.Equal(t, 100.0, Clamp(119.0, 0, 100))
	assert.Equal(t, 42.5, Clamp(42.5, 0, 100))
	// swapped bounds
	assert.Equal(t, 10, Clamp(50, 10, 0))
}
