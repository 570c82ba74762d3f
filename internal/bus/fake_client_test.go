package bus

import (
	"errors"
	"sync"
)

// fakeSubscription satisfies Subscription for tests.
type fakeSubscription struct {
	subject string
	client  *fakeClient
}

func (s *fakeSubscription) Unsubscribe() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	delete(s.client.handlers, s.subject)
	return nil
}

type publishedMessage struct {
	subject string
	reply   string
	data    []byte
}

// fakeClient is an in-process double for Client: Subscribe registers a
// handler this test can drive directly by calling deliver; Publish and
// PublishRequest record every call for assertions.
type fakeClient struct {
	mu sync.Mutex

	handlers map[string]func(*Message)
	published []publishedMessage
	requests  []publishedMessage

	subscribeErr error
	requestMsg   *Message
	requestErr   error
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: map[string]func(*Message){}}
}

func (c *fakeClient) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, publishedMessage{subject: subject, data: data})
	return nil
}

func (c *fakeClient) PublishRequest(subject, reply string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, publishedMessage{subject: subject, reply: reply, data: data})
	return nil
}

func (c *fakeClient) Request(subject string, data []byte, timeoutMillis int64) (*Message, error) {
	if c.requestErr != nil {
		return nil, c.requestErr
	}
	if c.requestMsg != nil {
		return c.requestMsg, nil
	}
	return nil, errors.New("fakeClient: no response configured")
}

func (c *fakeClient) Subscribe(subject string, handler func(*Message)) (Subscription, error) {
	if c.subscribeErr != nil {
		return nil, c.subscribeErr
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[subject] = handler
	return &fakeSubscription{subject: subject, client: c}, nil
}

func (c *fakeClient) Close() {}

// deliver invokes whatever handler is registered for subject, as if a
// message arrived on the bus. It panics if nothing subscribed.
func (c *fakeClient) deliver(subject string, msg *Message) {
	c.mu.Lock()
	h := c.handlers[subject]
	c.mu.Unlock()
	if h == nil {
		panic("fakeClient: no handler registered for " + subject)
	}
	h(msg)
}

func (c *fakeClient) publishedTo(subject string) []publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []publishedMessage
	for _, m := range c.published {
		if m.subject == subject {
			out = append(out, m)
		}
	}
	return out
}

func (c *fakeClient) lastPublished() publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published[len(c.published)-1]
}

func (c *fakeClient) lastRequest() publishedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests[len(c.requests)-1]
}
