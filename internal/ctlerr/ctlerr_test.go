package ctlerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(Transient, cause)
	assert.ErrorIs(t, err, cause)
}

func TestIs(t *testing.T) {
	err := New(Safety, nil)
	assert.True(t, Is(err, Safety))
	assert.False(t, Is(err, Permanent))
	assert.False(t, Is(errors.New("plain"), Safety))
}

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(New(Partial, errors.New("one sink failed")))
	assert.True(t, ok)
	assert.Equal(t, Partial, kind)

	_, ok = KindOf(errors.New("plain"))
	assert.False(t, ok)
}
