package testutil

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

// MockNATSClient is an in-memory stand-in for natsclient.Client's core
// Subscribe/Publish methods. Subscriptions honor the "*" and ">" wildcards
// and end when their context is cancelled. Publish delivers synchronously to
// matching handlers.
type MockNATSClient struct {
	mu            sync.RWMutex
	messages      map[string][][]byte
	subscriptions map[string][]*mockSubscription
	publishErr    error
	closed        bool
}

type mockSubscription struct {
	handler func(context.Context, []byte)
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages:      make(map[string][][]byte),
		subscriptions: make(map[string][]*mockSubscription),
	}
}

// FailPublish makes every subsequent Publish return err. Pass nil to restore.
func (c *MockNATSClient) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

// Publish records data on subject and hands it to matching subscribers.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.publishErr != nil {
		err := c.publishErr
		c.mu.Unlock()
		return err
	}

	c.messages[subject] = append(c.messages[subject], data)

	var handlers []func(context.Context, []byte)
	for pattern, subs := range c.subscriptions {
		if !SubjectMatches(pattern, subject) {
			continue
		}
		for _, sub := range subs {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		handler(msgCtx, data)
		cancel()
	}

	return nil
}

// Subscribe registers handler for subject, which may contain wildcards. The
// handler is removed once ctx is cancelled.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("client is closed")
	}
	sub := &mockSubscription{handler: handler}
	c.subscriptions[subject] = append(c.subscriptions[subject], sub)
	context.AfterFunc(ctx, func() { c.unsubscribe(subject, sub) })
	return nil
}

func (c *MockNATSClient) unsubscribe(subject string, sub *mockSubscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[subject] = slices.DeleteFunc(c.subscriptions[subject], func(s *mockSubscription) bool {
		return s == sub
	})
}

// SubscriptionCount returns the number of handlers registered for subject.
func (c *MockNATSClient) SubscriptionCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscriptions[subject])
}

// GetMessages returns a copy of all messages published on subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Close closes the mock client.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// SubjectMatches reports whether subject is matched by pattern using NATS
// token rules: "*" matches one token, a trailing ">" matches one or more.
func SubjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// AssertNoMessages checks that no messages were received on a subject.
func AssertNoMessages(t *testing.T, client *MockNATSClient, subject string) {
	t.Helper()

	if n := client.GetMessageCount(subject); n > 0 {
		t.Fatalf("expected no messages on subject %s, got %d", subject, n)
	}
}
