package events

import (
	"context"
	"errors"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/require"
)

type fakeResult struct {
	err      error
	deadline bool
}

func (r *fakeResult) Get(ctx context.Context) (string, error) {
	_, r.deadline = ctx.Deadline()
	return "server-1", r.err
}

type fakeTopic struct {
	msgs    []*pubsub.Message
	result  *fakeResult
	stopped bool
}

func (f *fakeTopic) Publish(_ context.Context, msg *pubsub.Message) publishResult {
	f.msgs = append(f.msgs, msg)
	if f.result == nil {
		return nil
	}
	return f.result
}

func (f *fakeTopic) Stop() { f.stopped = true }

type fakeCloser struct {
	err    error
	closed bool
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestPubSubPublisherSendsEnvelopeWithAttributes(t *testing.T) {
	topic := &fakeTopic{result: &fakeResult{}}
	client := &fakeCloser{}
	pub := newPubSubPublisher(topic, client, "projects/library/topics/circulation")
	fixed := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	pub.now = func() time.Time { return fixed }

	event := HoldsExpiredEvent{ExpiredCount: 2, AffectedTitleIDs: []uuid.UUID{uuid.New()}}
	require.NoError(t, pub.Publish(context.Background(), TypeHoldExpired, event))
	require.Len(t, topic.msgs, 1)
	require.True(t, topic.result.deadline, "publish should be bounded by a timeout")

	msg := topic.msgs[0]
	require.Equal(t, TypeHoldExpired, msg.Attributes["event_type"])
	require.Equal(t, fixed.Format(time.RFC3339Nano), msg.Attributes["occurred_at"])

	var envelope Envelope
	require.NoError(t, jsoniter.ConfigFastest.Unmarshal(msg.Data, &envelope))
	require.Equal(t, envelope.EventID, msg.Attributes["event_id"])
	require.Equal(t, envelopeVersion, envelope.Version)

	var payload HoldsExpiredEvent
	require.NoError(t, jsoniter.ConfigFastest.Unmarshal(envelope.Data, &payload))
	require.Equal(t, event, payload)

	require.NoError(t, pub.Close())
	require.True(t, topic.stopped)
	require.True(t, client.closed)
}

func TestPubSubPublisherReportsFailures(t *testing.T) {
	topic := &fakeTopic{result: &fakeResult{err: errors.New("permission denied")}}
	pub := newPubSubPublisher(topic, nil, "circulation")
	err := pub.Publish(context.Background(), TypeHoldCreated, HoldCreatedEvent{})
	require.ErrorContains(t, err, "permission denied")

	empty := newPubSubPublisher(&fakeTopic{}, nil, "circulation")
	require.Error(t, empty.Publish(context.Background(), TypeHoldCreated, HoldCreatedEvent{}))
}

func TestTopicResourceName(t *testing.T) {
	require.Equal(t, "projects/lib/topics/circulation", topicResourceName("lib", " circulation "))
	require.Equal(t, "projects/other/topics/x", topicResourceName("lib", "projects/other/topics/x"))
	require.Empty(t, topicResourceName("lib", " "))
}
