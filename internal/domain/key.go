package domain

import (
	"strings"

	"github.com/google/uuid"
)

// Key нормализует идентификатор: обрезает пробелы и приводит к нижнему регистру.
// Числовые id бэкенда приходят строкой уже после декодирования, поэтому
// 44 и "44" дают одинаковый ключ.
func Key(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// IsIDShaped сообщает, похожа ли строка на внешний ключ, а не на имя:
// только цифры или UUID.
func IsIDShaped(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if isDigits(s) {
		return true
	}
	_, err := uuid.Parse(s)
	return err == nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
