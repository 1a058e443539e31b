package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerConnectorPassesThroughOnSuccess(t *testing.T) {
	chat := func(ctx context.Context, prompt string) (<-chan Event, error) {
		ch := make(chan Event, 1)
		ch <- ContentEvent(prompt)
		close(ch)
		return ch, nil
	}
	b := NewBreakerConnector("test", chat)

	stream, err := b.Chat(context.Background(), "hi")
	require.NoError(t, err)
	ev := <-stream
	assert.Equal(t, "hi", ev.Content)
	assert.Equal(t, gobreaker.StateClosed, b.State())
}

func TestBreakerConnectorTripsAfterConsecutiveFailures(t *testing.T) {
	failing := errors.New("provider down")
	chat := func(ctx context.Context, prompt string) (<-chan Event, error) {
		return nil, failing
	}
	b := NewBreakerConnector("test", chat)

	for i := 0; i < 5; i++ {
		_, err := b.Chat(context.Background(), "x")
		assert.Error(t, err)
	}

	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Chat(context.Background(), "x")
	assert.Error(t, err)
	assert.NotEqual(t, failing, err)
}
