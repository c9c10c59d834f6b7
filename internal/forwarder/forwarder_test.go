package forwarder

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type countingForwarder struct {
	calls int
	err   error
}

func (c *countingForwarder) LogWeight(context.Context, string, float64) error {
	c.calls++
	return c.err
}

func TestMulti_CallsEveryForwarder(t *testing.T) {
	failing := &countingForwarder{err: errors.New("timeout")}
	ok := &countingForwarder{}

	err := Multi{failing, ok}.LogWeight(context.Background(), "Alex", 70)
	assert.ErrorIs(t, err, ErrForward)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestMulti_NoErrors(t *testing.T) {
	assert.NoError(t, Multi{&countingForwarder{}}.LogWeight(context.Background(), "Alex", 70))
	assert.NoError(t, Multi(nil).LogWeight(context.Background(), "Alex", 70))
}
