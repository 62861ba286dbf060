package fault

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		sentinel error
		client   bool
	}{
		{"not found", NotFound("7", "Version %d not found", 7), KindNotFound, ErrNotFound, true},
		{"invalid structure", InvalidStructure("cat1", "Duplicate category ID: cat1"), KindInvalidStructure, ErrInvalidStructure, true},
		{"invalid transition", InvalidTransition("7", "Version %d is not in DRAFT status (current: %s)", 7, "PUBLISHED"), KindInvalidTransition, ErrInvalidTransition, true},
		{"conflict", Conflict("1", "version number collision", ErrUniqueViolation), KindConflict, ErrConflict, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			assert.Equal(t, tt.kind, KindOf(wrapped))
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.client, IsClientError(wrapped))
			assert.Equal(t, !tt.client, IsInternalError(wrapped))
		})
	}
}

func TestConflictKeepsCause(t *testing.T) {
	err := Conflict("1", "version number collision", ErrUniqueViolation)
	assert.ErrorIs(t, err, ErrUniqueViolation)
}

func TestMessageOf(t *testing.T) {
	err := InvalidStructure("cat1", "Duplicate category ID: cat1")
	assert.Equal(t, "Duplicate category ID: cat1", MessageOf(err))
	assert.Contains(t, err.Error(), "[ClientError]")
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
}

func TestKindOfBareSentinel(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(fmt.Errorf("get: %w", ErrNotFound)))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
}
