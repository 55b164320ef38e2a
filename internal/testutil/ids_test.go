package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDs_ReturnsSameID(t *testing.T) {
	gen := NewFixedIDs("heal-1")
	assert.Equal(t, "heal-1", gen.Generate())
	assert.Equal(t, "heal-1", gen.Generate())
}

func TestFixedIDs_EmptyDefault(t *testing.T) {
	assert.Equal(t, "test-task", NewFixedIDs("").Generate())
}
