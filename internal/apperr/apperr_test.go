package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errSample = New(KindConflict, "slot_unavailable", "slot unavailable")

func TestIsMatchesThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("create appointment: %w", errSample.Wrap(errors.New("23P01")))

	assert.ErrorIs(t, wrapped, errSample)
	assert.Equal(t, KindConflict, KindOf(wrapped))
	assert.Equal(t, "slot_unavailable", CodeOf(wrapped))
}

func TestIsDistinguishesCodes(t *testing.T) {
	other := New(KindConflict, "therapist_busy", "busy")
	assert.False(t, errors.Is(other, errSample))
}

func TestPersistence(t *testing.T) {
	assert.Nil(t, Persistence("noop", nil))

	err := Persistence("insert appointment", errors.New("connection reset"))
	assert.Equal(t, KindPersistence, KindOf(err))
	assert.Contains(t, err.Error(), "connection reset")

	// classified errors pass through untouched
	assert.Same(t, errSample, Persistence("insert appointment", errSample))
}

func TestKindOfUnclassified(t *testing.T) {
	assert.Equal(t, KindPersistence, KindOf(errors.New("boom")))
	assert.Equal(t, "internal_error", CodeOf(errors.New("boom")))
}
