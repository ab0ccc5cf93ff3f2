package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
)

// PubSubProvider publishes notices to a Google Cloud Pub/Sub topic.
type PubSubProvider struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	logger *zap.Logger
}

// NewPubSub creates a Pub/Sub client and verifies the topic exists. It
// authenticates using Application Default Credentials.
func NewPubSub(ctx context.Context, projectID, topicID string, logger *zap.Logger) (*PubSubProvider, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub project and topic are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(topicID)
	ok, err := topic.Exists(ctx)
	if err != nil {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("check pubsub topic %s: %w", topicID, err)
	}
	if !ok {
		if cerr := client.Close(); cerr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(cerr))
		}
		return nil, fmt.Errorf("pubsub topic %s does not exist in project %s", topicID, projectID)
	}

	return &PubSubProvider{client: client, topic: topic, logger: logger}, nil
}

// Publish sends the notice and waits for the server ack. One message per run
// does not need the client's background batching.
func (p *PubSubProvider) Publish(ctx context.Context, notice Notice) error {
	if p == nil || p.topic == nil {
		return fmt.Errorf("pubsub provider is not configured")
	}
	data, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"run_id":  notice.RunID,
			"profile": notice.Profile,
		},
	})
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish notice: %w", err)
	}
	p.logger.Debug("published run notice",
		zap.String("message_id", id),
		zap.String("run_id", notice.RunID),
	)
	return nil
}

// Close stops the topic publisher and closes the underlying client.
func (p *PubSubProvider) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	p.topic.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
