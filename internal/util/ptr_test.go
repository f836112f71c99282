package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPtr(t *testing.T) {
	p := Ptr("active")
	assert.Equal(t, "active", *p)

	n := Ptr(3)
	*n = 4
	assert.Equal(t, 4, *n)
}
