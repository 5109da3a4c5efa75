// Package common — limits.go содержит границы ввода, совпадающие со схемой БД.
// Значение за границей отклоняется как ошибка валидации до обращения к хранилищу.
package common

import (
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Длины строковых колонок (VARCHAR(n) считает символы, а не байты)
const (
	MaxEmailLen = 320
	MaxNameLen  = 255 // имена, заголовки, названия счетов и контор
	MaxCodeLen  = 32  // тип транзакции
)

var (
	// MoneyLimit — верхняя граница (не включительно) для NUMERIC(14,2).
	MoneyLimit = decimal.New(1, 12)
	// OddsLimit — верхняя граница (не включительно) для NUMERIC(10,4).
	OddsLimit = decimal.New(1, 6)
)

// CheckLen возвращает ошибку валидации, если в value больше max символов.
func CheckLen(field, value string, max int) error {
	if utf8.RuneCountInString(value) > max {
		return Validation("%s: не более %d символов", field, max)
	}
	return nil
}

// WithinMoneyLimit сообщает, что |d| помещается в денежную колонку.
func WithinMoneyLimit(d decimal.Decimal) bool {
	return d.Abs().LessThan(MoneyLimit)
}
