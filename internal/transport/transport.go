// Package transport implements the narrow message-passing interface the
// core consumes (send, broadcast, get_messages) and a deterministic,
// tick-driven simulated transport that exercises it. The adversarial
// characteristics of a real unreliable transport — configurable loss,
// duplication, delay ranges, and per-sender rate limiting — are explicitly
// out of scope for this core (spec.md §1); this package only models the
// logical-clock and reordering behavior described in spec.md §5.
package transport

import (
	"math/rand"
	"sync"

	"github.com/google/uuid"
)

// MessageType tags the payload carried by a Message, mirroring the wire
// shapes in spec.md §6.3.
type MessageType string

const (
	Transaction      MessageType = "TRANSACTION"
	BlockProposal    MessageType = "BLOCK_PROPOSAL"
	BlockHeader      MessageType = "BLOCK_HEADER"
	BlockBodyRequest MessageType = "BLOCK_BODY_REQUEST"
	BlockBody        MessageType = "BLOCK_BODY"
	Vote             MessageType = "VOTE"
)

// Message is one unit of transport traffic. Payload is a plain map so the
// transport never needs to know the shape of any particular message type —
// callers marshal and unmarshal their own typed payloads.
type Message struct {
	ID       string
	Sender   string
	Receiver string
	Type     MessageType
	Payload  map[string]interface{}
}

// Transport is the interface the consensus/node layer consumes. Nothing
// above this package depends on SimulatedTransport directly, so a future
// real network transport can implement the same interface without touching
// node or consensus code.
type Transport interface {
	Send(sender, receiver string, typ MessageType, payload map[string]interface{})
	Broadcast(sender string, receivers []string, typ MessageType, payload map[string]interface{})
	GetMessages(receiver string) []Message
}

type queued struct {
	msg          Message
	deliveryTime uint64
}

// SimulatedTransport is a deterministic, in-memory reference Transport. It
// owns its own logical clock, advanced only by Tick: messages sent at time
// t are queued and become visible to their receiver once Tick has advanced
// the clock to (or past) their delivery time, at which point they move into the
// receiver's inbox and that inbox is shuffled to simulate reordering.
// Shuffling uses a seeded PRNG so that two transports constructed with the
// same seed and driven with the same call sequence reorder messages
// identically (spec.md §8, deterministic replay).
type SimulatedTransport struct {
	mu sync.Mutex

	now     uint64
	delay   uint64
	rng     *rand.Rand
	queue   []queued
	inboxes map[string][]Message
}

// NewSimulatedTransport creates a transport whose shuffle order is seeded
// by seed, and whose messages become deliverable delay ticks after they
// are sent (delay 0 means delivery on the very next Tick).
func NewSimulatedTransport(seed int64, delay uint64) *SimulatedTransport {
	return &SimulatedTransport{
		rng:     rand.New(rand.NewSource(seed)),
		delay:   delay,
		inboxes: make(map[string][]Message),
	}
}

func (t *SimulatedTransport) enqueueLocked(sender, receiver string, typ MessageType, payload map[string]interface{}) {
	t.queue = append(t.queue, queued{
		msg: Message{
			ID:       uuid.NewString(),
			Sender:   sender,
			Receiver: receiver,
			Type:     typ,
			Payload:  payload,
		},
		deliveryTime: t.now + t.delay,
	})
}

// Send queues a single message from sender to receiver.
func (t *SimulatedTransport) Send(sender, receiver string, typ MessageType, payload map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enqueueLocked(sender, receiver, typ, payload)
}

// Broadcast queues typ/payload to every address in receivers except
// sender itself.
func (t *SimulatedTransport) Broadcast(sender string, receivers []string, typ MessageType, payload map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range receivers {
		if r == sender {
			continue
		}
		t.enqueueLocked(sender, r, typ, payload)
	}
}

// GetMessages drains and returns receiver's current inbox.
func (t *SimulatedTransport) GetMessages(receiver string) []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	msgs := t.inboxes[receiver]
	delete(t.inboxes, receiver)
	return msgs
}

// Tick advances the transport's logical clock by delta and moves every
// queued message whose delivery time has arrived into its receiver's
// inbox, then shuffles each touched inbox.
func (t *SimulatedTransport) Tick(delta uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.now += delta

	remaining := t.queue[:0]
	touched := make(map[string]bool)
	var order []string
	for _, q := range t.queue {
		if q.deliveryTime <= t.now {
			t.inboxes[q.msg.Receiver] = append(t.inboxes[q.msg.Receiver], q.msg)
			if !touched[q.msg.Receiver] {
				touched[q.msg.Receiver] = true
				order = append(order, q.msg.Receiver)
			}
		} else {
			remaining = append(remaining, q)
		}
	}
	t.queue = remaining

	for _, receiver := range order {
		inbox := t.inboxes[receiver]
		t.rng.Shuffle(len(inbox), func(i, j int) {
			inbox[i], inbox[j] = inbox[j], inbox[i]
		})
	}
}

// Now returns the transport's current logical clock value.
func (t *SimulatedTransport) Now() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.now
}
