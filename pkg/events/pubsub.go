package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/multierr"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/logger"
)

const defaultPublishTimeout = 10 * time.Second

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) publishResult
	Stop()
}

type gcpTopic struct {
	*pubsub.Publisher
}

func (t gcpTopic) Publish(ctx context.Context, msg *pubsub.Message) publishResult {
	return t.Publisher.Publish(ctx, msg)
}

func newPubSub(ctx context.Context, cfg config.EventsConfig, logg *logger.Logger) (Publisher, error) {
	projectID := strings.TrimSpace(cfg.GCPProjectID)
	if projectID == "" {
		return nil, fmt.Errorf("gcp project id is required")
	}
	topic := topicResourceName(projectID, cfg.PubSubTopic)
	if topic == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topic", topic), "pubsub publisher ready")
	}
	return newPubSubPublisher(gcpTopic{Publisher: client.Publisher(topic)}, client, topic), nil
}

// PubSubPublisher publishes JSON envelopes to one Pub/Sub topic and waits
// for the server to acknowledge each message.
type PubSubPublisher struct {
	topic   topicPublisher
	client  closer
	name    string
	timeout time.Duration
	now     func() time.Time
}

func newPubSubPublisher(topic topicPublisher, client closer, name string) *PubSubPublisher {
	return &PubSubPublisher{
		topic:   topic,
		client:  client,
		name:    name,
		timeout: defaultPublishTimeout,
		now:     time.Now,
	}
}

func (p *PubSubPublisher) Publish(ctx context.Context, eventType string, data any) error {
	envelope, body, err := encode(eventType, data, p.now())
	if err != nil {
		return err
	}

	msg := &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"event_id":    envelope.EventID,
			"event_type":  eventType,
			"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	result := p.topic.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("publish %s: no result from topic %s", eventType, p.name)
	}
	if _, err := result.Get(publishCtx); err != nil {
		return fmt.Errorf("publish %s: %w", eventType, err)
	}
	return nil
}

// Close flushes pending messages and releases the client.
func (p *PubSubPublisher) Close() error {
	var err error
	if p.topic != nil {
		p.topic.Stop()
	}
	if p.client != nil {
		err = multierr.Append(err, p.client.Close())
	}
	return err
}

// topicResourceName accepts a topic id or a full resource name.
func topicResourceName(projectID, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/topics/") {
		return n
	}
	return fmt.Sprintf("projects/%s/topics/%s", projectID, n)
}
