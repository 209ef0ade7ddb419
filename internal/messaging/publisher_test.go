package messaging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewPublisherDisabledIsNoop(t *testing.T) {
	pub, err := NewPublisher(Config{Topic: "procurement.orders"}, nil)
	require.NoError(t, err)
	require.Equal(t, "procurement.orders", pub.Topic())
	require.NoError(t, pub.Publish(context.Background(), []byte("k"), []byte("v")))
	require.NoError(t, pub.Close())
}

func TestNewPublisherRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewPublisher(Config{Enabled: true, Topic: "t"}, nil)
	require.Error(t, err)

	_, err = NewPublisher(Config{Enabled: true, Brokers: []string{"localhost:9092"}}, nil)
	require.Error(t, err)
}

func TestNewPublisherKafka(t *testing.T) {
	pub, err := NewPublisher(Config{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "procurement.orders"}, nil)
	require.NoError(t, err)
	require.Equal(t, "procurement.orders", pub.Topic())
	require.NoError(t, pub.Close())
}
