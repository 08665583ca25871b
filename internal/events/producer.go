package events

import (
	"context"
	"fmt"
	"log"

	"github.com/IBM/sarama"
)

// Publisher sends an encoded message to a topic
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
	Close() error
}

// Producer publishes messages to Kafka
type Producer struct {
	producer sarama.SyncProducer
}

// NewKafkaProducer creates a producer that waits for all in-sync replicas
func NewKafkaProducer(brokers []string, clientID string) (*Producer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewProducer(producer), nil
}

// NewProducer wraps an existing sarama producer
func NewProducer(producer sarama.SyncProducer) *Producer {
	return &Producer{producer: producer}
}

// Publish sends one message keyed by key
func (p *Producer) Publish(ctx context.Context, topic, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(payload),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", topic, err)
	}

	log.Printf("[Kafka] Sent message topic=%s partition=%d offset=%d", topic, partition, offset)
	return nil
}

// Close flushes and closes the producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
