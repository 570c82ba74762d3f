package entitystore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChuLiYu/action-engine/internal/bus"
)

// fakeBus is a minimal bus.Client double: Request returns whatever was
// configured for the subject requested, recording the last request made.
type fakeBus struct {
	responses map[string]*bus.Message
	errs      map[string]error

	lastSubject string
	lastData    []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{responses: map[string]*bus.Message{}, errs: map[string]error{}}
}

func (f *fakeBus) Publish(subject string, data []byte) error                  { return nil }
func (f *fakeBus) PublishRequest(subject, reply string, data []byte) error    { return nil }
func (f *fakeBus) Subscribe(subject string, handler func(*bus.Message)) (bus.Subscription, error) {
	return nil, nil
}
func (f *fakeBus) Close() {}

func (f *fakeBus) Request(subject string, data []byte, timeoutMillis int64) (*bus.Message, error) {
	f.lastSubject = subject
	f.lastData = data
	if err, ok := f.errs[subject]; ok {
		return nil, err
	}
	return f.responses[subject], nil
}

func TestFetchReturnsContents(t *testing.T) {
	fb := newFakeBus()
	fb.responses[TopicGet] = &bus.Message{Data: []byte(`"contents"`)}
	c := New(fb)

	data, err := c.Fetch(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, []byte(`"contents"`), data)
	assert.Equal(t, "/a", string(fb.lastData))
}

func TestFetchEmptyResponseIsNotFound(t *testing.T) {
	fb := newFakeBus()
	fb.responses[TopicGet] = &bus.Message{Data: []byte{}}
	c := New(fb)

	data, err := c.Fetch(context.Background(), "/missing")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestFetchRequestErrorPropagates(t *testing.T) {
	fb := newFakeBus()
	fb.errs[TopicGet] = assert.AnError
	c := New(fb)

	_, err := c.Fetch(context.Background(), "/a")
	assert.Error(t, err)
}

func TestReadlinkReturnsResolvedPath(t *testing.T) {
	fb := newFakeBus()
	fb.responses[TopicReadlink] = &bus.Message{Data: []byte("/b")}
	c := New(fb)

	resolved, err := c.Readlink(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, "/b", resolved)
}

func TestReadlinkUnresolvedReturnsSamePath(t *testing.T) {
	fb := newFakeBus()
	fb.responses[TopicReadlink] = &bus.Message{Data: []byte("/a")}
	c := New(fb)

	resolved, err := c.Readlink(context.Background(), "/a")
	require.NoError(t, err)
	assert.Equal(t, "/a", resolved)
}

func TestResolveActionDecodesFetchedAction(t *testing.T) {
	fb := newFakeBus()
	fb.responses[TopicGet] = &bus.Message{Data: []byte(`{"kind":"identity","properties":[]}`)}
	c := New(fb)

	a, err := c.ResolveAction(context.Background(), "/actions/1")
	require.NoError(t, err)
	assert.Equal(t, "identity", a.Kind)
}

func TestResolveActionNotFoundErrors(t *testing.T) {
	fb := newFakeBus()
	fb.responses[TopicGet] = &bus.Message{Data: []byte{}}
	c := New(fb)

	_, err := c.ResolveAction(context.Background(), "/missing")
	assert.Error(t, err)
}

func TestResolveActionInvalidJSONErrors(t *testing.T) {
	fb := newFakeBus()
	fb.responses[TopicGet] = &bus.Message{Data: []byte("not json")}
	c := New(fb)

	_, err := c.ResolveAction(context.Background(), "/actions/1")
	assert.Error(t, err)
}
