package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

// TopicOrderEvents — топик событий изменения заказов по умолчанию.
const TopicOrderEvents = "orderwatch.order.events"

// EventTypeOrderUpdated — тип события изменения заказа.
const EventTypeOrderUpdated = "OrderUpdated"

// Kafka headers
const (
	HeaderEventName     = "x-event-name"
	HeaderCorrelationID = "x-correlation-id"
)

// OrderEvent — сообщение об изменении заказа в топике.
type OrderEvent struct {
	EventType string                 `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	Status    string                 `json:"status,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создаёт событие заказа.
func NewOrderEvent(eventType, orderID, status string, metadata map[string]interface{}) *OrderEvent {
	if eventType == "" {
		eventType = EventTypeOrderUpdated
	}
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		Status:    status,
		Timestamp: time.Now().UTC(),
		Metadata:  metadata,
	}
}

// ParseOrderEvent переводит сообщение топика в push-событие.
// Имя события берётся из заголовка, иначе из event_type.
// Поля order_id и orderId принимаются оба, id может быть числом.
func ParseOrderEvent(message *sarama.ConsumerMessage) (domain.PushEvent, error) {
	var raw struct {
		EventType    string          `json:"event_type"`
		EventTypeAlt string          `json:"eventType"`
		OrderID      json.RawMessage `json:"order_id"`
		OrderIDAlt   json.RawMessage `json:"orderId"`
		Status       json.RawMessage `json:"status"`
	}
	if err := json.Unmarshal(message.Value, &raw); err != nil {
		return domain.PushEvent{}, fmt.Errorf("failed to unmarshal order event: %w", err)
	}

	event := domain.PushEvent{Name: headerValue(message, HeaderEventName)}
	if event.Name == "" {
		event.Name = firstNonEmpty(raw.EventType, raw.EventTypeAlt)
	}
	if event.Name == "" {
		event.Name = EventTypeOrderUpdated
	}

	event.OrderID = firstNonEmpty(scalar(raw.OrderID), scalar(raw.OrderIDAlt))
	if event.OrderID == "" && len(message.Key) > 0 {
		event.OrderID = string(message.Key)
	}
	if status := scalar(raw.Status); status != "" {
		if len(raw.Status) > 0 && raw.Status[0] != '"' {
			var idx int
			if _, err := fmt.Sscan(status, &idx); err == nil {
				if parsed, ok := domain.OrderStatusFromIndex(idx); ok {
					status = string(parsed)
				} else {
					status = ""
				}
			}
		}
		event.Status = status
	}
	return event, nil
}

func headerValue(message *sarama.ConsumerMessage, key string) string {
	for _, header := range message.Headers {
		if header != nil && strings.EqualFold(string(header.Key), key) {
			return strings.TrimSpace(string(header.Value))
		}
	}
	return ""
}

func scalar(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
