package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrDuplicateCredit, "Student CS23B1001 already credited")
	assert.True(t, errors.Is(err, ErrDuplicateCredit))
	assert.False(t, errors.Is(err, ErrNoCredit))
	assert.Equal(t, http.StatusConflict, err.Status)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	raw := fmt.Errorf("boom")
	appErr := FromError(raw)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, raw, appErr.Unwrap())

	wrapped := fmt.Errorf("context: %w", ErrEventFull)
	assert.Equal(t, ErrEventFull, FromError(wrapped))
	assert.Nil(t, FromError(nil))
}
