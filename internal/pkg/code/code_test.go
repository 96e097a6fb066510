package code

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNumeric_Length(t *testing.T) {
	for _, n := range []int{1, 4, 6, 18} {
		for i := 0; i < 50; i++ {
			c, err := NewNumeric(n)
			require.NoError(t, err)
			assert.Len(t, c, n)
			assert.NotEqual(t, byte('0'), c[0])
			for _, r := range c {
				assert.True(t, r >= '0' && r <= '9', "non-digit in %q", c)
			}
		}
	}
}

func TestNewNumeric_OutOfRange(t *testing.T) {
	_, err := NewNumeric(0)
	assert.Error(t, err)
	_, err = NewNumeric(19)
	assert.Error(t, err)
}
