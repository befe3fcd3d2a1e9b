package errs

import (
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestAuthenticationCoversAuthCodes(t *testing.T) {
	assert.True(t, ErrAuthentication.Is(ErrAuthRequired))
	assert.True(t, ErrAuthentication.Is(ErrInvalidToken.WithDetail("expired")))
	assert.True(t, ErrAuthentication.Is(fmt.Errorf("wrapped: %w", ErrInvalidToken)))

	assert.False(t, ErrAuthentication.Is(ErrValidation))
	assert.False(t, ErrAuthentication.Is(assert.AnError))
	// 子码不反向匹配
	assert.False(t, ErrAuthRequired.Is(ErrInvalidToken))
	assert.False(t, ErrAuthRequired.Is(ErrAuthentication))
}

func TestCodeRelationAdd(t *testing.T) {
	r := newCodeRelation()
	assert.Error(t, r.Add(1))
	assert.NoError(t, r.Add(1, 2, 3))
	assert.True(t, r.Is(1, 2))
	assert.True(t, r.Is(1, 3))
	assert.True(t, r.Is(2, 3))
	assert.False(t, r.Is(3, 1))
	assert.True(t, r.Is(7, 7))
}

func TestWrapMsgKeepsCode(t *testing.T) {
	err := ErrValidation.WrapMsg("bad field", "name", "conversationId", "odd")
	ce, ok := AsCode(err)
	assert.True(t, ok)
	assert.Equal(t, ValidationError, ce.Code)
	assert.Equal(t, "bad field, name=conversationId, odd=MISSING", ce.Detail)
	assert.Equal(t, "1001 validation failed bad field, name=conversationId, odd=MISSING", ce.Error())
	assert.True(t, ErrValidation.Is(err))
}

func TestErrPanic(t *testing.T) {
	assert.NoError(t, ErrPanic(nil))
	err := ErrPanic("boom")
	ce, ok := AsCode(err)
	assert.True(t, ok)
	assert.Equal(t, ServerInternalError, ce.Code)
	assert.Equal(t, "boom", ce.Detail)
	_, hasStack := err.(interface{ StackTrace() pkgerrors.StackTrace })
	assert.True(t, hasStack)
}
