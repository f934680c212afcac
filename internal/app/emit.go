package app

import (
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/push/kafka"
)

// EmitOptions содержит параметры ручной публикации события заказа.
type EmitOptions struct {
	Brokers   string
	Topic     string
	EventName string
	OrderID   string
	Status    string
}

type eventPublisher interface {
	PublishOrderEvent(topic string, event *kafka.OrderEvent) error
	Close() error
}

// Emit публикует событие изменения заказа в Kafka.
func Emit(opts EmitOptions) error {
	logger := log.WithField("component", "emit")
	event, err := buildEvent(opts)
	if err != nil {
		return err
	}

	producer, err := initKafkaProducer(opts.Brokers, logger)
	if err != nil {
		return err
	}
	if producer == nil {
		return errors.New("kafka brokers are required")
	}
	defer closeKafka(producer, logger)

	return publish(producer, opts.Topic, event, logger)
}

func buildEvent(opts EmitOptions) (*kafka.OrderEvent, error) {
	orderID := strings.TrimSpace(opts.OrderID)
	if orderID == "" {
		return nil, errors.New("order id is required")
	}
	var status string
	if raw := strings.TrimSpace(opts.Status); raw != "" {
		parsed, ok := domain.ParseOrderStatus(raw)
		if !ok {
			return nil, fmt.Errorf("unknown order status %q", raw)
		}
		status = string(parsed)
	}
	return kafka.NewOrderEvent(strings.TrimSpace(opts.EventName), orderID, status, map[string]interface{}{"source": "orderwatch-emit"}), nil
}

func publish(publisher eventPublisher, topic string, event *kafka.OrderEvent, logger *log.Entry) error {
	if err := publisher.PublishOrderEvent(topic, event); err != nil {
		return err
	}
	logger.WithFields(log.Fields{
		"order_id": event.OrderID,
		"status":   event.Status,
		"event":    event.EventType,
	}).Info("order event published")
	return nil
}

// initKafkaProducer создаёт producer, если brokers не пустой.
// Для пустого brokers возвращает nil, nil.
func initKafkaProducer(brokers string, logger *log.Entry) (*kafka.Producer, error) {
	brokerList := stringList(brokers)
	if len(brokerList) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokerList)
	if err != nil {
		logger.WithError(err).WithField("brokers", brokerList).Warn("failed to create kafka producer")
		return nil, err
	}

	logger.WithField("brokers", brokerList).Info("kafka producer initialized")
	return producer, nil
}

// closeKafka закрывает producer, если он не nil.
func closeKafka(producer eventPublisher, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
