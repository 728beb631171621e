package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "msg"))
	assert.Nil(t, Wrapf(nil, "document %s", "d1"))

	err := Wrapf(ErrNotFound, "document %s", "d1")
	assert.EqualError(t, err, "document d1: not found")
	assert.True(t, Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))

	err = Wrap(ErrConflict, "index lease")
	assert.True(t, Is(err, ErrConflict))
	assert.False(t, Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestAsFindsAppErrorInChain(t *testing.T) {
	err := Wrapf(Conflict("Document is being indexed"), "document %s", "d1")

	var ae *AppError
	assert.True(t, As(err, &ae))
	assert.Equal(t, KindConflict, ae.Kind)
	assert.Equal(t, "Document is being indexed", MessageOf(err))
	assert.True(t, Is(err, ErrConflict))

	assert.False(t, As(errors.New("plain"), &ae))
}
