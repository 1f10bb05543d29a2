package tsprobe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstPTSOnEmptyDataReturnsErrNoPTS(t *testing.T) {
	_, err := FirstPTS(nil)
	assert.ErrorIs(t, err, ErrNoPTS)
}
