package identity

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageFor(t *testing.T) {
	assert.Equal(t, "Falsches Passwort.", MessageFor(CodeWrongPassword))
	assert.Equal(t, "Benutzer nicht gefunden.", MessageFor(CodeUserNotFound))
	assert.Equal(t, defaultMessage, MessageFor("auth/something-new"))
}

func TestToAuthError(t *testing.T) {
	assert.Nil(t, ToAuthError(nil))

	wrapped := fmt.Errorf("login: %w", NewAuthError(CodeWrongPassword, nil))
	got := ToAuthError(wrapped)
	assert.Equal(t, CodeWrongPassword, got.Code)
	assert.True(t, HasCode(wrapped, CodeWrongPassword))

	raw := errors.New("connection reset")
	got = ToAuthError(raw)
	assert.Equal(t, CodeInternalError, got.Code)
	assert.Equal(t, defaultMessage, got.Message)
	assert.ErrorIs(t, got, raw)
	assert.NotContains(t, got.Message, "connection reset")
}
