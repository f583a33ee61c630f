// Package memory contains an in-memory notifier for tests and dry runs.
package memory

import (
	"context"
	"strconv"
	"sync"
)

// Message is one recorded notification.
type Message struct {
	ID      string
	Topic   string
	Payload any
}

// Notifier records notifications instead of sending them.
type Notifier struct {
	mu       sync.Mutex
	sent     []Message
	failNext error
}

// New returns an empty Notifier.
func New() *Notifier {
	return &Notifier{}
}

// FailNext makes the next Publish return err without recording anything.
func (n *Notifier) FailNext(err error) {
	n.mu.Lock()
	n.failNext = err
	n.mu.Unlock()
}

// Publish records payload under topic and returns a sequential ID.
func (n *Notifier) Publish(_ context.Context, topic string, payload any) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failNext; err != nil {
		n.failNext = nil
		return "", err
	}
	id := "memory-" + strconv.Itoa(len(n.sent)+1)
	n.sent = append(n.sent, Message{ID: id, Topic: topic, Payload: payload})
	return id, nil
}

// Messages returns a copy of everything recorded so far.
func (n *Notifier) Messages() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.sent...)
}
