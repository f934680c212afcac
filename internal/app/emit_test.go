package app

import (
	"errors"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderwatch/internal/push/kafka"
)

type publisherStub struct {
	topic    string
	events   []*kafka.OrderEvent
	err      error
	closeErr error
	closed   bool
}

func (p *publisherStub) PublishOrderEvent(topic string, event *kafka.OrderEvent) error {
	if p.err != nil {
		return p.err
	}
	p.topic = topic
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) Close() error {
	p.closed = true
	return p.closeErr
}

func TestBuildEvent(t *testing.T) {
	event, err := buildEvent(EmitOptions{OrderID: " 44 ", Status: "shipped"})
	require.NoError(t, err)
	require.Equal(t, "44", event.OrderID)
	require.Equal(t, "Shipped", event.Status)
	require.Equal(t, kafka.EventTypeOrderUpdated, event.EventType)

	event, err = buildEvent(EmitOptions{OrderID: "7", EventName: "orderChanged"})
	require.NoError(t, err)
	require.Empty(t, event.Status)
	require.Equal(t, "orderChanged", event.EventType)
}

func TestBuildEvent_Invalid(t *testing.T) {
	_, err := buildEvent(EmitOptions{})
	require.EqualError(t, err, "order id is required")

	_, err = buildEvent(EmitOptions{OrderID: "1", Status: "Lost"})
	require.EqualError(t, err, `unknown order status "Lost"`)
}

func TestPublish(t *testing.T) {
	stub := &publisherStub{}
	event := kafka.NewOrderEvent("", "44", "Shipped", nil)

	require.NoError(t, publish(stub, "orders", event, log.WithField("test", "emit")))
	require.Equal(t, "orders", stub.topic)
	require.Len(t, stub.events, 1)

	stub.err = errors.New("broker down")
	require.EqualError(t, publish(stub, "orders", event, log.WithField("test", "emit")), "broker down")
}

func TestEmit_RequiresBrokers(t *testing.T) {
	err := Emit(EmitOptions{OrderID: "1"})
	require.EqualError(t, err, "kafka brokers are required")
}

func TestInitKafkaProducer_EmptyBrokers(t *testing.T) {
	producer, err := initKafkaProducer(" , ", log.WithField("test", "kafka"))
	require.NoError(t, err)
	require.Nil(t, producer)
}

func TestInitKafkaProducer_UnreachableBroker(t *testing.T) {
	producer, err := initKafkaProducer("127.0.0.1:1", log.WithField("test", "kafka"))
	require.Error(t, err)
	require.Nil(t, producer)
}

func TestCloseKafka(t *testing.T) {
	logger := log.WithField("test", "kafka")

	// Не должно паниковать
	closeKafka(nil, logger)

	stub := &publisherStub{closeErr: errors.New("close failed")}
	closeKafka(stub, logger)
	require.True(t, stub.closed)
}
