package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Send after the endpoint has been closed.
var ErrClosed = errors.New("channel: endpoint closed")

// Message is the unit carried over the channel. Payload interpretation
// is up to the message type's owner.
type Message struct {
	Type    string          `json:"type"`
	From    string          `json:"from"`
	Payload json.RawMessage `json:"payload"`
}

// Channel is one endpoint of a bidirectional message link. Receive
// returns the same inbound stream on every call; the stream is closed
// when the peer closes its endpoint and is not restartable.
type Channel interface {
	Send(ctx context.Context, peer string, msg Message) error
	Receive() <-chan Message
	Close() error
}

// endpoint is one side of an in-process duplex pair.
type endpoint struct {
	name string
	peer string

	in  chan Message
	out chan Message

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

// Pair returns two connected in-process endpoints named a and b.
// Messages sent on one arrive on the other in order. The buffer bounds
// how many undelivered messages each direction holds before Send blocks.
func Pair(a, b string, buffer int) (Channel, Channel) {
	if buffer < 1 {
		buffer = 16
	}
	ab := make(chan Message, buffer)
	ba := make(chan Message, buffer)

	return &endpoint{name: a, peer: b, in: ba, out: ab},
		&endpoint{name: b, peer: a, in: ab, out: ba}
}

func (e *endpoint) Send(ctx context.Context, peer string, msg Message) error {
	if peer != e.peer {
		return fmt.Errorf("channel: unknown peer %q", peer)
	}
	msg.From = e.name

	// Holding the lock through the send keeps Close from racing a
	// blocked sender.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}

	select {
	case e.out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *endpoint) Receive() <-chan Message {
	return e.in
}

// Close stops the outbound direction; the peer's Receive stream ends
// once it drains. Inbound messages already queued remain readable.
func (e *endpoint) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.once.Do(func() { close(e.out) })
	return nil
}
