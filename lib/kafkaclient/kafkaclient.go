package kafkaclient

import (
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
)

// NewProducer creates a client that only produces to topic.
func NewProducer(hostPorts []string, topic string) (*kgo.Client, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(hostPorts...),
		kgo.AllowAutoTopicCreation(),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create events client: %w", err)
	}
	return client, nil
}
