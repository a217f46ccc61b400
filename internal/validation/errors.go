// Package validation содержит проверки входных данных бонусов, пакетных операций и периодов.
package validation

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// FieldError описывает ошибку проверки поля запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// FieldErrors собирает ошибки проверки. Реализует error.
type FieldErrors []FieldError

func (v FieldErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, err := range v {
		msgs = append(msgs, err.Field+": "+err.Message)
	}
	return strings.Join(msgs, "; ")
}

// ToMap возвращает ошибки в виде «поле → сообщение». При повторе поля остаётся первое сообщение.
func (v FieldErrors) ToMap() map[string]string {
	result := make(map[string]string, len(v))
	for _, err := range v {
		if _, ok := result[err.Field]; !ok {
			result[err.Field] = err.Message
		}
	}
	return result
}

// Has сообщает, есть ли ошибка для поля.
func (v FieldErrors) Has(field string) bool {
	for _, err := range v {
		if err.Field == field {
			return true
		}
	}
	return false
}

func (v *FieldErrors) add(field, message string) {
	*v = append(*v, FieldError{Field: field, Message: message})
}

func (v *FieldErrors) addItem(index int, errs FieldErrors) {
	prefix := "items[" + itoa(index) + "]"
	for _, err := range errs {
		*v = append(*v, FieldError{Field: prefix + "." + err.Field, Message: err.Message})
	}
}

// Result содержит принятое значение или список ошибок проверки.
type Result[T any] struct {
	OK     bool
	Value  T
	Errors FieldErrors
}

// Err возвращает ошибки проверки как error или nil для принятого значения.
func (r Result[T]) Err() error {
	if r.OK {
		return nil
	}
	return r.Errors
}

func newResult[T any](value T, errs FieldErrors) Result[T] {
	if len(errs) > 0 {
		var zero T
		return Result[T]{OK: false, Value: zero, Errors: errs}
	}
	return Result[T]{OK: true, Value: value}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// IsValidID проверяет, что идентификатор записан как UUID в каноническом виде.
func IsValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
