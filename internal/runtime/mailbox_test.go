package runtime

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMailboxPriorityPop(t *testing.T) {
	// S1: push Low, High, Normal; pops come back High, Normal, Low.
	agent := uuid.New()
	mb := NewMailbox(agent)

	mb.Push(NewMessage(agent, agent, "low").WithPriority(PriorityLow))
	mb.Push(NewMessage(agent, agent, "high").WithPriority(PriorityHigh))
	mb.Push(NewMessage(agent, agent, "normal").WithPriority(PriorityNormal))

	first, ok := mb.Pop()
	require.True(t, ok)
	assert.Equal(t, PriorityHigh, first.Priority)

	second, ok := mb.Pop()
	require.True(t, ok)
	assert.Equal(t, PriorityNormal, second.Priority)

	third, ok := mb.Pop()
	require.True(t, ok)
	assert.Equal(t, PriorityLow, third.Priority)

	_, ok = mb.Pop()
	assert.False(t, ok)
}

func TestMailboxFIFOWithinPriority(t *testing.T) {
	agent := uuid.New()
	mb := NewMailbox(agent)
	mb.Push(NewMessage(agent, agent, "first"))
	mb.Push(NewMessage(agent, agent, "second"))
	mb.Push(NewMessage(agent, agent, "third"))

	first, _ := mb.Pop()
	second, _ := mb.Pop()
	third, _ := mb.Pop()
	assert.Equal(t, "first", first.Content)
	assert.Equal(t, "second", second.Content)
	assert.Equal(t, "third", third.Content)
}

func TestMailboxPeekDoesNotRemove(t *testing.T) {
	agent := uuid.New()
	mb := NewMailbox(agent)
	mb.Push(NewMessage(agent, agent, "hello"))

	peeked, ok := mb.Peek()
	require.True(t, ok)
	assert.Equal(t, "hello", peeked.Content)
	assert.Equal(t, 1, mb.Len())

	popped, ok := mb.Pop()
	require.True(t, ok)
	assert.Equal(t, "hello", popped.Content)
	assert.True(t, mb.IsEmpty())
}

func TestMailboxClear(t *testing.T) {
	agent := uuid.New()
	mb := NewMailbox(agent)
	mb.Push(NewMessage(agent, agent, "a"))
	mb.Push(NewMessage(agent, agent, "b"))
	mb.Clear()
	assert.True(t, mb.IsEmpty())
}

func TestMessageBusSendMissingMailbox(t *testing.T) {
	bus := NewMessageBus()
	err := bus.Send(NewMessage(uuid.New(), uuid.New(), "x"))
	assert.ErrorIs(t, err, ErrMailboxNotFound)
}

func TestMessageBusSendAndQueueDepth(t *testing.T) {
	bus := NewMessageBus()
	a := uuid.New()
	b := uuid.New()
	bus.CreateMailbox(a)
	bus.CreateMailbox(b)

	require.NoError(t, bus.Send(NewMessage(a, b, "hello")))
	assert.Equal(t, 1, bus.QueueDepth())
	assert.Equal(t, uint64(1), bus.TotalSent())

	mb, ok := bus.GetMailbox(b)
	require.True(t, ok)
	msg, ok := mb.Pop()
	require.True(t, ok)
	assert.Equal(t, "hello", msg.Content)
	bus.MarkReceived()
	assert.Equal(t, uint64(1), bus.TotalReceived())
	assert.Equal(t, 0, bus.QueueDepth())
}

func TestMessageBusBroadcastSkipsSender(t *testing.T) {
	bus := NewMessageBus()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	bus.CreateMailbox(a)
	bus.CreateMailbox(b)
	bus.CreateMailbox(c)

	delivered := bus.Broadcast(NewMessage(a, uuid.Nil, "announce"))
	assert.Equal(t, 2, delivered)
	assert.Equal(t, 0, mustLen(bus, a))
	assert.Equal(t, 1, mustLen(bus, b))
	assert.Equal(t, 1, mustLen(bus, c))
}

func TestMessageBusRemoveMailboxIdempotent(t *testing.T) {
	bus := NewMessageBus()
	id := uuid.New()
	bus.CreateMailbox(id)
	bus.RemoveMailbox(id)
	bus.RemoveMailbox(id) // second remove must not panic
	_, ok := bus.GetMailbox(id)
	assert.False(t, ok)
}

func mustLen(bus *MessageBus, id uuid.UUID) int {
	mb, ok := bus.GetMailbox(id)
	if !ok {
		return -1
	}
	return mb.Len()
}
