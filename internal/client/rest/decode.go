package rest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
)

// Бэкенд отдаёт одни и те же поля под разными именами и в разном регистре
// (customerId, customer_id, CustomerID). Всё сводим к нормализованным ключам
// до того, как запись попадёт в ядро.

var errMissingID = errors.New("record has no id")

type fields map[string]json.RawMessage

func normalizeField(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "_", "")
	return strings.ReplaceAll(name, "-", "")
}

func decodeFields(raw json.RawMessage) (fields, error) {
	var source map[string]json.RawMessage
	if err := json.Unmarshal(raw, &source); err != nil {
		return nil, err
	}
	out := make(fields, len(source))
	for key, value := range source {
		out[normalizeField(key)] = value
	}
	return out, nil
}

// pick возвращает первое непустое значение из перечисленных имён.
func (f fields) pick(names ...string) (json.RawMessage, bool) {
	for _, name := range names {
		value, ok := f[name]
		if !ok {
			continue
		}
		trimmed := bytes.TrimSpace(value)
		if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
			continue
		}
		return trimmed, true
	}
	return nil, false
}

func isObject(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '{'
}

func isArray(raw json.RawMessage) bool {
	return len(raw) > 0 && raw[0] == '['
}

func asString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return strings.TrimSpace(s), true
	case '{', '[', 't', 'f', 'n':
		return "", false
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", false
		}
		return n.String(), true
	}
}

func asDecimal(raw json.RawMessage) (decimal.Decimal, bool) {
	s, ok := asString(raw)
	if !ok || s == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func asInt(raw json.RawMessage) (int, bool) {
	d, ok := asDecimal(raw)
	if !ok {
		return 0, false
	}
	return int(d.IntPart()), true
}

func asBool(raw json.RawMessage) (bool, bool) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	s, ok := asString(raw)
	if !ok {
		return false, false
	}
	parsed, err := strconv.ParseBool(s)
	if err != nil {
		return false, false
	}
	return parsed, true
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func asTime(raw json.RawMessage) (time.Time, bool) {
	s, ok := asString(raw)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func asStatus(raw json.RawMessage) (domain.OrderStatus, bool) {
	if len(raw) > 0 && raw[0] != '"' {
		if idx, ok := asInt(raw); ok {
			return domain.OrderStatusFromIndex(idx)
		}
		return "", false
	}
	s, ok := asString(raw)
	if !ok {
		return "", false
	}
	return domain.ParseOrderStatus(s)
}

func decodeOrderList(raw json.RawMessage) ([]domain.OrderPatch, error) {
	raw = bytes.TrimSpace(raw)
	if isObject(raw) {
		f, err := decodeFields(raw)
		if err != nil {
			return nil, err
		}
		inner, ok := f.pick("items", "orders", "results", "data", "content")
		if !ok {
			return nil, nil
		}
		raw = inner
	}
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if !isArray(raw) {
		return nil, fmt.Errorf("decode order list: unexpected payload %.32q", raw)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode order list: %w", err)
	}
	orders := make([]domain.OrderPatch, 0, len(items))
	for idx, item := range items {
		order, err := decodeOrder(item)
		if err != nil {
			return nil, fmt.Errorf("decode order[%d]: %w", idx, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func decodeOrder(raw json.RawMessage) (domain.OrderPatch, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return domain.OrderPatch{}, err
	}

	var patch domain.OrderPatch
	if v, ok := f.pick("id", "orderid"); ok {
		patch.ID, _ = asString(v)
	}
	if patch.ID == "" {
		return domain.OrderPatch{}, errMissingID
	}

	decodeOrderCustomer(f, &patch)

	if v, ok := f.pick("total", "totalamount", "totalvalue", "grandtotal", "amount"); ok {
		if d, ok := asDecimal(v); ok {
			patch.Total = &d
		}
	}
	if v, ok := f.pick("status", "orderstatus", "state"); ok {
		if status, ok := asStatus(v); ok {
			patch.Status = &status
		}
	}

	for _, name := range []string{"lineitems", "orderitems", "items", "details"} {
		v, ok := f.pick(name)
		if !ok || !isArray(v) {
			continue
		}
		items, err := decodeLineItems(v)
		if err != nil {
			return domain.OrderPatch{}, err
		}
		patch.LineItems = items
		break
	}
	if v, ok := f.pick("itemscount", "itemcount", "totalquantity", "quantity", "items"); ok && !isArray(v) {
		if n, ok := asInt(v); ok {
			patch.ItemsCount = &n
		}
	}

	if v, ok := f.pick("active", "isactive", "enabled"); ok {
		if b, ok := asBool(v); ok {
			patch.Active = &b
		}
	}
	if v, ok := f.pick("createdat", "creationdate", "created", "orderdate", "date"); ok {
		if t, ok := asTime(v); ok {
			patch.CreatedAt = &t
		}
	}
	if v, ok := f.pick("updatedat", "modifiedat", "lastmodified", "updated"); ok {
		if t, ok := asTime(v); ok {
			patch.UpdatedAt = &t
		}
	}

	return patch, nil
}

// decodeOrderCustomer разбирает ссылку на клиента: вложенный объект,
// строку (имя или ключ) или отдельные поля имени и ключа.
func decodeOrderCustomer(f fields, patch *domain.OrderPatch) {
	if v, ok := f.pick("customer", "client"); ok {
		if isObject(v) {
			if customer, err := decodeCustomer(v); err == nil {
				if customer.ID != "" {
					patch.CustomerID = &customer.ID
				}
				if customer.Name != "" {
					patch.CustomerName = &customer.Name
				}
			}
		} else if s, ok := asString(v); ok && s != "" {
			patch.CustomerName = &s
		}
	}
	if v, ok := f.pick("customername", "clientname", "customerdisplayname"); ok {
		if s, ok := asString(v); ok && s != "" {
			patch.CustomerName = &s
		}
	}
	if v, ok := f.pick("customerid", "clientid", "customerfk"); ok {
		if s, ok := asString(v); ok && s != "" {
			patch.CustomerID = &s
		}
	}
}

func decodeLineItems(raw json.RawMessage) ([]domain.LineItem, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	result := make([]domain.LineItem, 0, len(items))
	for _, item := range items {
		f, err := decodeFields(item)
		if err != nil {
			return nil, fmt.Errorf("decode line item: %w", err)
		}
		var line domain.LineItem
		if v, ok := f.pick("productid", "product", "sku"); ok {
			if isObject(v) {
				if pf, err := decodeFields(v); err == nil {
					if idRaw, ok := pf.pick("id", "productid"); ok {
						line.ProductID, _ = asString(idRaw)
					}
				}
			} else {
				line.ProductID, _ = asString(v)
			}
		}
		if v, ok := f.pick("quantity", "qty", "count"); ok {
			line.Quantity, _ = asInt(v)
		}
		if v, ok := f.pick("unitvalue", "unitprice", "price", "value"); ok {
			line.UnitValue, _ = asDecimal(v)
		}
		if v, ok := f.pick("linetotal", "total", "subtotal"); ok {
			line.LineTotal, _ = asDecimal(v)
		} else {
			line.LineTotal = line.UnitValue.Mul(decimal.NewFromInt(int64(line.Quantity)))
		}
		result = append(result, line)
	}
	return result, nil
}

func decodeCustomer(raw json.RawMessage) (domain.Customer, error) {
	f, err := decodeFields(raw)
	if err != nil {
		return domain.Customer{}, err
	}
	var customer domain.Customer
	if v, ok := f.pick("id", "customerid", "clientid"); ok {
		customer.ID, _ = asString(v)
	}
	if v, ok := f.pick("name", "displayname", "fullname", "customername", "companyname"); ok {
		customer.Name, _ = asString(v)
	}
	if customer.Name == "" {
		first, _ := f.pick("firstname")
		last, _ := f.pick("lastname")
		firstName, _ := asString(first)
		lastName, _ := asString(last)
		customer.Name = strings.TrimSpace(firstName + " " + lastName)
	}
	if v, ok := f.pick("email", "displayemail", "mail"); ok {
		customer.Email, _ = asString(v)
	}
	if customer.ID == "" {
		return domain.Customer{}, errMissingID
	}
	return customer, nil
}

// envelope — нормализованный конверт ответа {ok, data, error}.
type envelope struct {
	OK    bool
	Data  json.RawMessage
	Error string
}

// decodeEnvelope распознаёт конверт {ok|success, data, error|message};
// если конверта нет, весь ответ считается данными.
func decodeEnvelope(body []byte) envelope {
	body = bytes.TrimSpace(body)
	if !isObject(body) {
		return envelope{OK: true, Data: body}
	}
	f, err := decodeFields(body)
	if err != nil {
		return envelope{OK: true, Data: body}
	}

	okRaw, hasOK := f.pick("ok", "success", "succeeded")
	data, hasData := f.pick("data", "result", "payload")
	if !hasOK && !hasData {
		return envelope{OK: true, Data: body}
	}

	env := envelope{OK: true, Data: data}
	if hasOK {
		env.OK, _ = asBool(okRaw)
	}
	if v, ok := f.pick("error", "message", "errormessage"); ok {
		if isObject(v) {
			if ef, err := decodeFields(v); err == nil {
				if m, ok := ef.pick("message"); ok {
					env.Error, _ = asString(m)
				}
			}
		} else {
			env.Error, _ = asString(v)
		}
	}
	return env
}

type lineItemBody struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitValue decimal.Decimal `json:"unitValue"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

type updateBody struct {
	Status    domain.OrderStatus `json:"status"`
	LineItems []lineItemBody     `json:"lineItems"`
}

func encodeUpdate(update domain.OrderUpdate) updateBody {
	body := updateBody{Status: update.Status, LineItems: make([]lineItemBody, 0, len(update.LineItems))}
	for _, item := range update.LineItems {
		body.LineItems = append(body.LineItems, lineItemBody(item))
	}
	return body
}
