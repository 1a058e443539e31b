package runtime

import (
	"container/heap"
	"fmt"
	"sync"
)

// ErrMailboxNotFound is returned by MessageBus.Send when the recipient has
// no registered mailbox.
var ErrMailboxNotFound = fmt.Errorf("runtime: mailbox not found")

// heapEntry pairs a Message with an insertion sequence number so that,
// within one priority class, pop order matches push order (the spec
// leaves intra-priority order unspecified; this implementation resolves
// it as FIFO, the way a caller would naturally expect from a queue).
type heapEntry struct {
	msg Message
	seq uint64
}

type messageHeap []heapEntry

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].msg.Priority != h[j].msg.Priority {
		return h[i].msg.Priority > h[j].msg.Priority // max-heap on priority
	}
	return h[i].seq < h[j].seq // FIFO within a priority class
}

func (h messageHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *messageHeap) Push(x any) {
	*h = append(*h, x.(heapEntry))
}

func (h *messageHeap) Pop() any {
	old := *h
	n := len(old)
	entry := old[n-1]
	*h = old[:n-1]
	return entry
}

// Mailbox is a single agent's priority-ordered inbox. Push/Pop/Peek are
// safe for concurrent use.
type Mailbox struct {
	agentID AgentID

	mu      sync.Mutex
	heap    messageHeap
	nextSeq uint64
}

// NewMailbox returns an empty mailbox owned by agentID.
func NewMailbox(agentID AgentID) *Mailbox {
	return &Mailbox{agentID: agentID}
}

// Push inserts a message in priority order (max-first).
func (m *Mailbox) Push(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	heap.Push(&m.heap, heapEntry{msg: msg, seq: m.nextSeq})
	m.nextSeq++
}

// Pop removes and returns the highest-priority message, or false if empty.
func (m *Mailbox) Pop() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.heap) == 0 {
		return Message{}, false
	}
	entry := heap.Pop(&m.heap).(heapEntry)
	return entry.msg, true
}

// Peek returns the highest-priority message without removing it.
func (m *Mailbox) Peek() (Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.heap) == 0 {
		return Message{}, false
	}
	return m.heap[0].msg, true
}

// Len reports the current queue depth.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.heap)
}

// IsEmpty reports whether the mailbox currently holds no messages.
func (m *Mailbox) IsEmpty() bool { return m.Len() == 0 }

// Clear removes all queued messages.
func (m *Mailbox) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heap = nil
}

// MessageBus maps agent IDs to their mailboxes and routes send/broadcast
// traffic, tracking aggregate sent/received counters.
type MessageBus struct {
	mu        sync.RWMutex
	mailboxes map[AgentID]*Mailbox

	countersMu    sync.Mutex
	totalSent     uint64
	totalReceived uint64
}

// NewMessageBus returns an empty bus.
func NewMessageBus() *MessageBus {
	return &MessageBus{mailboxes: make(map[AgentID]*Mailbox)}
}

// CreateMailbox registers a new mailbox for id, replacing any existing one.
func (b *MessageBus) CreateMailbox(id AgentID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mailboxes[id] = NewMailbox(id)
}

// RemoveMailbox deletes id's mailbox. Idempotent: removing an absent
// mailbox is not an error.
func (b *MessageBus) RemoveMailbox(id AgentID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.mailboxes, id)
}

// GetMailbox returns id's mailbox, or false if none exists.
func (b *MessageBus) GetMailbox(id AgentID) (*Mailbox, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	mb, ok := b.mailboxes[id]
	return mb, ok
}

// Send delivers msg to msg.To's mailbox. Returns ErrMailboxNotFound if the
// recipient has no mailbox; counters are not incremented in that case.
func (b *MessageBus) Send(msg Message) error {
	mb, ok := b.GetMailbox(msg.To)
	if !ok {
		return fmt.Errorf("%w: %s", ErrMailboxNotFound, msg.To)
	}
	mb.Push(msg)
	b.countersMu.Lock()
	b.totalSent++
	b.countersMu.Unlock()
	return nil
}

// Broadcast pushes a copy of msg, re-addressed to each recipient, into
// every mailbox except the sender's. Returns the number of deliveries.
func (b *MessageBus) Broadcast(msg Message) int {
	b.mu.RLock()
	recipients := make([]AgentID, 0, len(b.mailboxes))
	for id := range b.mailboxes {
		if id != msg.From {
			recipients = append(recipients, id)
		}
	}
	b.mu.RUnlock()

	delivered := 0
	for _, id := range recipients {
		copyMsg := msg
		copyMsg.To = id
		if mb, ok := b.GetMailbox(id); ok {
			mb.Push(copyMsg)
			delivered++
		}
	}
	if delivered > 0 {
		b.countersMu.Lock()
		b.totalSent += uint64(delivered)
		b.countersMu.Unlock()
	}
	return delivered
}

// MarkReceived records that the consumer has taken responsibility for one
// popped message. It is the caller's job to call this after a successful
// Pop; the bus does not do it automatically (see SPEC_FULL.md §9).
func (b *MessageBus) MarkReceived() {
	b.countersMu.Lock()
	b.totalReceived++
	b.countersMu.Unlock()
}

// TotalSent returns the cumulative count of delivered messages (send +
// broadcast deliveries).
func (b *MessageBus) TotalSent() uint64 {
	b.countersMu.Lock()
	defer b.countersMu.Unlock()
	return b.totalSent
}

// TotalReceived returns the cumulative count of MarkReceived calls.
func (b *MessageBus) TotalReceived() uint64 {
	b.countersMu.Lock()
	defer b.countersMu.Unlock()
	return b.totalReceived
}

// QueueDepth sums Len() across all mailboxes at the instant of observation.
func (b *MessageBus) QueueDepth() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	total := 0
	for _, mb := range b.mailboxes {
		total += mb.Len()
	}
	return total
}
