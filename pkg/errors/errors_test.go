package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorFormatting(t *testing.T) {
	plain := New(ErrCodeNotFound, "game not found")
	assert.Equal(t, "NOT_FOUND: game not found", plain.Error())

	wrapped := Wrap(stderrors.New("connection refused"), ErrCodeInternalError, "failed to load game")
	assert.Equal(t, "INTERNAL_ERROR: failed to load game (connection refused)", wrapped.Error())
}

func TestHasCodeWalksChain(t *testing.T) {
	inner := New(ErrCodeNotFound, "game not found")
	outer := Wrap(inner, ErrCodeInternalError, "flow failed")
	viaFmt := fmt.Errorf("handler: %w", outer)

	assert.True(t, HasCode(viaFmt, ErrCodeInternalError))
	assert.True(t, HasCode(viaFmt, ErrCodeNotFound))
	assert.False(t, HasCode(viaFmt, ErrCodeForbidden))
	assert.False(t, HasCode(stderrors.New("plain"), ErrCodeNotFound))
	assert.False(t, HasCode(nil, ErrCodeNotFound))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "Lobby is full", Message(fmt.Errorf("join: %w", New(ErrCodeValidation, "Lobby is full"))))
	assert.Equal(t, "boom", Message(stderrors.New("boom")))
}
