package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

// Разделитель записей в протоколе hub-серверов: несколько сообщений
// могут прийти в одном кадре.
const recordSeparator = 0x1e

var errNoEventName = errors.New("push frame has no event name")

// decodeFrames разбирает кадр в события. Поддерживаются формы
// {"target":"OrderUpdated","arguments":[{...}]},
// {"event":"OrderUpdated","data":{...}} и {"type":"OrderUpdated","orderId":...}.
// Служебные сообщения hub-протокола (ping, handshake) пропускаются.
func decodeFrames(data []byte) ([]domain.PushEvent, error) {
	var events []domain.PushEvent
	var lastErr error
	for _, record := range bytes.Split(data, []byte{recordSeparator}) {
		record = bytes.TrimSpace(record)
		if len(record) == 0 {
			continue
		}
		event, ok, err := decodeFrame(record)
		if err != nil {
			lastErr = err
			continue
		}
		if ok {
			events = append(events, event)
		}
	}
	if len(events) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return events, nil
}

func decodeFrame(record []byte) (domain.PushEvent, bool, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(record, &raw); err != nil {
		return domain.PushEvent{}, false, err
	}
	frame := lowerKeys(raw)

	var event domain.PushEvent
	for _, key := range []string{"target", "event", "name", "type"} {
		value := frame[key]
		if len(value) == 0 || value[0] != '"' {
			continue
		}
		if name, ok := stringValue(value); ok && name != "" {
			event.Name = name
			break
		}
	}
	if event.Name == "" {
		// Числовой type без target — служебное сообщение протокола.
		if _, hasType := frame["type"]; hasType || len(frame) == 0 {
			return domain.PushEvent{}, false, nil
		}
		return domain.PushEvent{}, false, errNoEventName
	}

	payload := frame
	if args, ok := frame["arguments"]; ok {
		var list []json.RawMessage
		if err := json.Unmarshal(args, &list); err == nil && len(list) > 0 {
			payload = objectOrID(list[0])
		}
	} else {
		for _, key := range []string{"data", "payload"} {
			if inner, ok := frame[key]; ok {
				payload = objectOrID(inner)
				break
			}
		}
	}

	for _, key := range []string{"orderid", "order_id", "id"} {
		if id, ok := stringValue(payload[key]); ok && id != "" {
			event.OrderID = id
			break
		}
	}
	if status, ok := payload["status"]; ok {
		event.Status = statusValue(status)
	}
	return event, true, nil
}

// objectOrID превращает аргумент в объект; голый id становится {"orderid": id}.
func objectOrID(raw json.RawMessage) map[string]json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return lowerKeys(obj)
	}
	return map[string]json.RawMessage{"orderid": raw}
}

func lowerKeys(in map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

func stringValue(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s), true
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), true
	}
	return "", false
}

// statusValue возвращает статус строкой; числовой код переводится в имя.
func statusValue(raw json.RawMessage) string {
	s, ok := stringValue(raw)
	if !ok {
		return ""
	}
	if len(raw) > 0 && raw[0] != '"' {
		if idx, err := strconv.Atoi(s); err == nil {
			if status, ok := domain.OrderStatusFromIndex(idx); ok {
				return string(status)
			}
			return ""
		}
	}
	return s
}
