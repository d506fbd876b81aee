package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func guarded(fn func()) (err error) {
	defer CapturePanic(arbor.NewLogger(), "unit", &err)
	fn()
	return nil
}

func TestCapturePanic(t *testing.T) {
	err := guarded(func() { panic("bad frame") })

	var panicErr *PanicError
	require.True(t, errors.As(err, &panicErr))
	assert.Equal(t, "unit", panicErr.Name)
	assert.Equal(t, "bad frame", panicErr.Value)
	assert.Contains(t, panicErr.Stack, "goroutine")
	assert.Equal(t, "panic in unit: bad frame", err.Error())
}

func TestCapturePanic_NoPanic(t *testing.T) {
	assert.NoError(t, guarded(func() {}))
}
